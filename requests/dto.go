package requests

import "github.com/lumineer/alight"

// RequestDTO is the file representation of one [alight.CreateRequest]
type RequestDTO struct {
	Type    alight.CreateRequestType `json:"type" yaml:"type"`
	Address string                   `json:"address" yaml:"address"`
	Content *string                  `json:"content,omitempty" yaml:"content,omitempty"` // Leaf text (Default "")
	File    *string                  `json:"file,omitempty" yaml:"file,omitempty"`       // Leaf text read from this path, relative to the import file
}

// ImportDTO is a whole import file.
//
// Requests are applied in order, then Tree in pre-order with keys sorted.
// In Tree a string value is a leaf, a mapping is a node and an empty value
// is an empty node:
//
//	tree:
//	  science:
//	    biology:
//	      cell_theory: All living organisms are composed of cells.
//	    physics:
type ImportDTO struct {
	Requests []RequestDTO  `json:"requests,omitempty" yaml:"requests,omitempty"`
	Tree     map[string]any `json:"tree,omitempty" yaml:"tree,omitempty"`
}
