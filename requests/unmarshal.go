// Package requests decodes import files into create requests for a tree.
package requests

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
)

// LoadFile reads an import file. The format is picked by extension:
// .yaml/.yml or .json. Relative "file" references resolve against the
// import file's directory.
func LoadFile(path string) ([]alight.CreateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file %s: %w", path, err)
	}
	return Unmarshal(data, filepath.Ext(path), filepath.Dir(path))
}

// Unmarshal decodes an import document. ext selects the format as in
// [LoadFile].
func Unmarshal(data []byte, ext, baseDir string) ([]alight.CreateRequest, error) {
	var dto ImportDTO
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &dto); err != nil {
			return nil, fmt.Errorf("parse YAML import: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, fmt.Errorf("parse JSON import: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported import format %q (use .yaml, .yml, or .json)", ext)
	}

	out := make([]alight.CreateRequest, 0, len(dto.Requests))
	for i, r := range dto.Requests {
		req, err := ConvertRequestDTO(r, baseDir)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		out = append(out, req)
	}

	treeReqs, err := flattenTree(address.Root(), dto.Tree)
	if err != nil {
		return nil, err
	}
	return append(out, treeReqs...), nil
}

// ConvertRequestDTO validates a DTO and converts it to its request type.
func ConvertRequestDTO(dto RequestDTO, baseDir string) (alight.CreateRequest, error) {
	if _, err := address.Parse(dto.Address); err != nil {
		return nil, err
	}

	switch dto.Type {
	case alight.NodeRequestType:
		if dto.Content != nil || dto.File != nil {
			return nil, fmt.Errorf("node request %q cannot carry content", dto.Address)
		}
		return &alight.NodeCreateRequest{Address: dto.Address}, nil
	case alight.LeafRequestType:
		if dto.Content != nil && dto.File != nil {
			return nil, fmt.Errorf("leaf request %q sets both content and file", dto.Address)
		}
		content := valueOrDefault(dto.Content, "")
		if dto.File != nil {
			p := *dto.File
			if !filepath.IsAbs(p) {
				p = filepath.Join(baseDir, p)
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("leaf request %q: %w", dto.Address, err)
			}
			content = string(data)
		}
		return &alight.LeafCreateRequest{Address: dto.Address, Content: content}, nil
	default:
		return nil, fmt.Errorf("unknown request type %q for %q", dto.Type, dto.Address)
	}
}

// flattenTree turns a nested mapping into requests in pre-order.
func flattenTree(parent address.Address, tree map[string]any) ([]alight.CreateRequest, error) {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []alight.CreateRequest
	for _, k := range keys {
		rel, err := address.Parse(k)
		if err != nil {
			return nil, err
		}
		if rel.IsRoot() {
			return nil, fmt.Errorf("%w: empty key under %q", alight.ErrInvalidAddress, parent)
		}
		a := parent.Join(rel)

		switch v := tree[k].(type) {
		case string:
			out = append(out, &alight.LeafCreateRequest{Address: a.String(), Content: v})
		case nil:
			out = append(out, &alight.NodeCreateRequest{Address: a.String()})
		case map[string]any:
			out = append(out, &alight.NodeCreateRequest{Address: a.String()})
			children, err := flattenTree(a, v)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
		default:
			return nil, fmt.Errorf("tree entry %q: want text or mapping, got %T", a, v)
		}
	}
	return out, nil
}

func valueOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr != nil {
		return *ptr
	}
	return defaultVal
}
