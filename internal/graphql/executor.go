// Package graphql serves the checkout and carrier operations over a small
// GraphQL surface. Queries are parsed with gqlparser and each top-level field is
// dispatched to its resolver; results are trimmed to the requested selection.
package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tournevent/collivery/pkg/collivery"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"go.uber.org/zap"
)

// Request is a GraphQL request body.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is a GraphQL response body.
type Response struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []Error        `json:"errors,omitempty"`
}

// Error is a GraphQL error. Carrier ledger entries carry their key and kind in
// Extensions.
type Error struct {
	Message    string         `json:"message"`
	Path       []string       `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Execute runs the selected operation of req. Request-level failures (parse
// errors, unknown operations) are returned with no data.
func (r *Resolver) Execute(ctx context.Context, req Request) Response {
	doc, parseErr := parser.ParseQuery(&ast.Source{Input: req.Query})
	if parseErr != nil {
		return Response{Errors: []Error{{Message: parseErr.Error()}}}
	}

	op, err := selectOperation(doc, req.OperationName)
	if err != nil {
		return Response{Errors: []Error{{Message: err.Error()}}}
	}

	var (
		fields   map[string]fieldResolver
		typeName string
	)
	switch op.Operation {
	case ast.Query:
		fields, typeName = queryFields, "Query"
	case ast.Mutation:
		fields, typeName = mutationFields, "Mutation"
	default:
		return Response{Errors: []Error{{Message: fmt.Sprintf("unsupported operation type %q", op.Operation)}}}
	}

	s := r.session()
	resp := Response{Data: make(map[string]any)}
	for _, sel := range op.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		key := responseKey(field)
		if field.Name == "__typename" {
			resp.Data[key] = typeName
			continue
		}

		resolve, ok := fields[field.Name]
		if !ok {
			resp.Data[key] = nil
			resp.Errors = append(resp.Errors, Error{Message: unknownField(typeName, field.Name).Error(), Path: []string{key}})
			continue
		}

		var value any
		args, err := argumentValues(field, req.Variables)
		if err == nil {
			value, err = resolve(ctx, s, args)
		}
		resp.Data[key] = nil
		if value != nil {
			projected, projErr := project(value, field.SelectionSet)
			if projErr != nil {
				r.Logger.Ctx(ctx).Error("Failed to encode GraphQL field", zap.String("field", field.Name), zap.Error(projErr))
				resp.Errors = append(resp.Errors, Error{Message: fmt.Sprintf("encoding %s: %v", field.Name, projErr), Path: []string{key}})
			} else {
				resp.Data[key] = projected
			}
		}
		if err != nil {
			r.Logger.Ctx(ctx).Warn("GraphQL field failed", zap.String("field", field.Name), zap.Error(err))
			resp.Errors = append(resp.Errors, errorsToGraphQL(key, err)...)
		}
	}
	return resp
}

func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if name != "" {
		if op := doc.Operations.ForName(name); op != nil {
			return op, nil
		}
		return nil, fmt.Errorf("unknown operation %q", name)
	}
	switch len(doc.Operations) {
	case 0:
		return nil, errors.New("no operation in query")
	case 1:
		return doc.Operations[0], nil
	default:
		return nil, errors.New("operationName is required when the query has several operations")
	}
}

func responseKey(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func argumentValues(f *ast.Field, vars map[string]any) (map[string]any, error) {
	args := make(map[string]any, len(f.Arguments))
	for _, arg := range f.Arguments {
		v, err := arg.Value.Value(vars)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", arg.Name, err)
		}
		args[arg.Name] = v
	}
	return args, nil
}

// project converts value to its JSON shape and keeps only the selected fields.
// Scalars and empty selections are returned whole.
func project(value any, set ast.SelectionSet) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return selectFields(generic, set), nil
}

func selectFields(value any, set ast.SelectionSet) any {
	if len(set) == 0 {
		return value
	}
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = selectFields(item, set)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(set))
		for _, sel := range set {
			field, ok := sel.(*ast.Field)
			if !ok {
				continue
			}
			out[responseKey(field)] = selectFields(v[field.Name], field.SelectionSet)
		}
		return out
	default:
		return value
	}
}

// errorsToGraphQL renders err under path. A carrier ledger becomes one error per
// entry.
func errorsToGraphQL(path string, err error) []Error {
	ledger, ok := collivery.AsLedger(err)
	if !ok || ledger.Empty() {
		return []Error{{Message: err.Error(), Path: []string{path}}}
	}
	entries := ledger.Entries()
	out := make([]Error, len(entries))
	for i, e := range entries {
		out[i] = Error{
			Message: e.Message,
			Path:    []string{path},
			Extensions: map[string]any{
				"key":  e.Key,
				"kind": string(e.Kind),
			},
		}
	}
	return out
}
