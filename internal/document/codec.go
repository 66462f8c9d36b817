package document

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/regsync/regsync/internal/tree"
)

// Codec encodes and decodes a tree to and from a document format.
type Codec interface {
	Name() string
	Encode(w io.Writer, n *tree.Node) error
	Decode(data []byte) (*tree.Node, error)
}

var (
	// JSON is the default, two-space indented document format.
	JSON Codec = jsonCodec{}
	// YAML is selected for .yaml and .yml documents.
	YAML Codec = yamlCodec{}
)

// CodecFor selects the codec for path by its extension.
func CodecFor(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(w io.Writer, n *tree.Node) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(n)
}

func (jsonCodec) Decode(data []byte) (*tree.Node, error) {
	var n *tree.Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return n, nil
}

type yamlCodec struct{}

func (yamlCodec) Name() string { return "yaml" }

func (yamlCodec) Encode(w io.Writer, n *tree.Node) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return err
	}
	return enc.Close()
}

func (yamlCodec) Decode(data []byte) (*tree.Node, error) {
	var n *tree.Node
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return n, nil
}
