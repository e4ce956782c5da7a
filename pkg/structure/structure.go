// Package structure models /structure responses from the Trafikanalys API:
// a tree of products, hierarchies, variables, measures, and filter values.
//
// Item types as the API reports them: "P" product, "H" hierarchy, "D"
// variable (dimension), "M" measure, "DV" variable value, "F" filter.
package structure

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Item type codes used by the API.
const (
	TypeProduct   = "P"
	TypeHierarchy = "H"
	TypeVariable  = "D"
	TypeMeasure   = "M"
	TypeValue     = "DV"
	TypeFilter    = "F"
)

// Item is one node of a structure response.
type Item struct {
	Name        string `json:"Name"`
	Label       string `json:"Label"`
	Description string `json:"Description"`
	Type        string `json:"Type"`
	DataType    string `json:"DataType"`
	ParentName  string `json:"ParentName"`
	ID          string `json:"Id"`
	UniqueID    string `json:"UniqueId"`
	ActiveFrom  string `json:"ActiveFrom"`
	Items       []Item `json:"StructureItems"`
}

// Response is a parsed /structure payload.
type Response struct {
	Items []Item `json:"StructureItems"`
}

// Parse decodes a raw /structure response.
func Parse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse structure response: %w", err)
	}
	return &resp, nil
}

// Product summarizes a top-level product item.
type Product struct {
	Code        string `json:"code"`
	Label       string `json:"label"`
	Description string `json:"description"`
	ID          string `json:"id"`
	UniqueID    string `json:"unique_id"`
	ActiveFrom  string `json:"active_from"`
}

// Products returns every product item in the response.
func (r *Response) Products() []Product {
	var products []Product
	for _, item := range r.Items {
		products = append(products, Product{
			Code:        item.Name,
			Label:       item.Label,
			Description: item.Description,
			ID:          item.ID,
			UniqueID:    item.UniqueID,
			ActiveFrom:  item.ActiveFrom,
		})
	}
	return products
}

// MatchProducts returns the products whose label or description contains the
// search term, case-insensitively.
func (r *Response) MatchProducts(term string) []Product {
	term = strings.ToLower(term)
	var matches []Product
	for _, p := range r.Products() {
		if strings.Contains(strings.ToLower(p.Label), term) ||
			strings.Contains(strings.ToLower(p.Description), term) {
			matches = append(matches, p)
		}
	}
	return matches
}

// Variable describes a variable, measure, or hierarchy within a product.
type Variable struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type"` // "Variable", "Measure" or "Hierarchy"
	Description string `json:"description"`
	DataType    string `json:"data_type"`
	Filterable  bool   `json:"filterable"`
	Hierarchy   string `json:"hierarchy,omitempty"` // parent hierarchy name, if nested
}

// ProductVariables collects the variables of a product, walking hierarchies
// recursively. Variables may appear nested inside the product item or at the
// top level with the product as parent; both cases are handled.
func (r *Response) ProductVariables(productCode string) []Variable {
	var vars []Variable

	for _, item := range r.Items {
		switch {
		case item.Name == productCode && item.Type == TypeProduct:
			for _, child := range item.Items {
				collectVariables(child, "", &vars)
			}
		case item.ParentName == productCode:
			collectVariables(item, "", &vars)
		}
	}

	return vars
}

func collectVariables(item Item, hierarchy string, out *[]Variable) {
	switch item.Type {
	case TypeVariable:
		*out = append(*out, Variable{
			Name:        item.Name,
			Label:       item.Label,
			Type:        "Variable",
			Description: item.Description,
			DataType:    item.DataType,
			Filterable:  true,
			Hierarchy:   hierarchy,
		})
	case TypeMeasure:
		*out = append(*out, Variable{
			Name:        item.Name,
			Label:       item.Label,
			Type:        "Measure",
			Description: item.Description,
			DataType:    item.DataType,
			Hierarchy:   hierarchy,
		})
	case TypeHierarchy:
		*out = append(*out, Variable{
			Name:        item.Name,
			Label:       item.Label,
			Type:        "Hierarchy",
			Description: item.Description,
			DataType:    item.DataType,
			Hierarchy:   hierarchy,
		})
		for _, child := range item.Items {
			collectVariables(child, item.Name, out)
		}
	}
}

// Option is a selectable filter value of a variable.
type Option struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Type        string `json:"option_type"` // "Value" or "Filter"
	UniqueID    string `json:"unique_id"`
}

// FindVariable locates a variable item by name anywhere in the response
// tree. Returns nil if not found.
func (r *Response) FindVariable(name string) *Item {
	return findItem(r.Items, name)
}

func findItem(items []Item, name string) *Item {
	for i := range items {
		if items[i].Name == name {
			return &items[i]
		}
		if found := findItem(items[i].Items, name); found != nil {
			return found
		}
	}
	return nil
}

// Options extracts the filter options (DV and F children) of an item.
func Options(item *Item) []Option {
	if item == nil {
		return nil
	}
	var opts []Option
	for _, child := range item.Items {
		switch child.Type {
		case TypeValue, TypeFilter:
			optType := "Value"
			if child.Type == TypeFilter {
				optType = "Filter"
			}
			opts = append(opts, Option{
				Name:        child.Name,
				Label:       child.Label,
				Description: child.Description,
				Type:        optType,
				UniqueID:    child.UniqueID,
			})
		}
	}
	return opts
}

// HierarchyPath returns the hierarchy names leading to a variable inside a
// product, outermost first. Returns nil when the variable sits directly
// under the product or is absent.
func (r *Response) HierarchyPath(productCode, variableName string) []string {
	for _, item := range r.Items {
		if item.Type == TypeProduct && item.Name == productCode {
			return hierarchyPath(item.Items, variableName, nil)
		}
	}
	return nil
}

func hierarchyPath(items []Item, name string, path []string) []string {
	for _, item := range items {
		if item.Name == name && (item.Type == TypeVariable || item.Type == TypeMeasure) {
			return path
		}
		if item.Type == TypeHierarchy {
			sub := make([]string, len(path), len(path)+1)
			copy(sub, path)
			sub = append(sub, item.Name)
			if found := hierarchyPath(item.Items, name, sub); found != nil {
				return found
			}
		}
	}
	return nil
}
