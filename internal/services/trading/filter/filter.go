// Package filter translates AIP-160 offer filter expressions into SQL.
package filter

import (
	"fmt"
	"strings"

	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/shopspring/decimal"
	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// OfferDeclarations returns the identifiers an offer filter may reference.
func OfferDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("price", filtering.TypeFloat),
		filtering.DeclareIdent("level", filtering.TypeInt),
		filtering.DeclareIdent("platform", filtering.TypeString),
		filtering.DeclareIdent("currency", filtering.TypeString),
		filtering.DeclareIdent("seller_id", filtering.TypeString),
		filtering.DeclareIdent("asset_id", filtering.TypeString),
		filtering.DeclareIdent("status", filtering.TypeString),
	)
}

// SQLCondition is a WHERE clause fragment with positional parameters.
type SQLCondition struct {
	Clause string
	Params []any
}

type column struct {
	name    string
	convert func(value any) (any, error)
}

// columns maps filter identifiers to the offer listing query's columns.
var columns = map[string]column{
	"price":     {name: "o.price_minor", convert: priceToMinor},
	"level":     {name: "a.level", convert: integer},
	"platform":  {name: "o.platform", convert: lowerString},
	"currency":  {name: "o.currency", convert: upperString},
	"seller_id": {name: "o.seller_id", convert: plainString},
	"asset_id":  {name: "o.asset_id", convert: plainString},
	"status":    {name: "o.status", convert: lowerString},
}

// ParseOfferFilter parses filterStr and returns its SQL condition. An empty
// filter yields an empty condition.
func ParseOfferFilter(filterStr string) (SQLCondition, error) {
	if strings.TrimSpace(filterStr) == "" {
		return SQLCondition{}, nil
	}
	decls, err := OfferDeclarations()
	if err != nil {
		return SQLCondition{}, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return SQLCondition{}, fmt.Errorf("parse filter: %w", err)
	}
	if parsed.CheckedExpr == nil {
		return SQLCondition{}, nil
	}
	return translateExpr(parsed.CheckedExpr.GetExpr())
}

func translateExpr(e *expr.Expr) (SQLCondition, error) {
	if e == nil {
		return SQLCondition{}, nil
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr)
	default:
		return SQLCondition{}, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func translateCall(call *expr.Expr_Call) (SQLCondition, error) {
	switch call.Function {
	case "AND":
		return translateJunction(call.Args, "AND")
	case "OR":
		return translateJunction(call.Args, "OR")
	case "NOT":
		return translateNot(call.Args)
	case "=":
		return translateComparison(call.Args, "=")
	case "!=":
		return translateComparison(call.Args, "!=")
	case "<":
		return translateComparison(call.Args, "<")
	case "<=":
		return translateComparison(call.Args, "<=")
	case ">":
		return translateComparison(call.Args, ">")
	case ">=":
		return translateComparison(call.Args, ">=")
	default:
		return SQLCondition{}, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func translateJunction(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) < 2 {
		return SQLCondition{}, fmt.Errorf("%s requires at least 2 arguments", op)
	}
	clauses := make([]string, 0, len(args))
	var params []any
	for _, arg := range args {
		cond, err := translateExpr(arg)
		if err != nil {
			return SQLCondition{}, err
		}
		clauses = append(clauses, cond.Clause)
		params = append(params, cond.Params...)
	}
	return SQLCondition{
		Clause: "(" + strings.Join(clauses, " "+op+" ") + ")",
		Params: params,
	}, nil
}

func translateNot(args []*expr.Expr) (SQLCondition, error) {
	if len(args) != 1 {
		return SQLCondition{}, fmt.Errorf("NOT requires 1 argument")
	}
	inner, err := translateExpr(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	return SQLCondition{Clause: "NOT " + inner.Clause, Params: inner.Params}, nil
}

func translateComparison(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("comparison requires 2 arguments")
	}
	field, err := extractFieldName(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	col, ok := columns[field]
	if !ok {
		return SQLCondition{}, fmt.Errorf("unknown field: %s", field)
	}
	raw, err := extractConstValue(args[1])
	if err != nil {
		return SQLCondition{}, err
	}
	value, err := col.convert(raw)
	if err != nil {
		return SQLCondition{}, fmt.Errorf("field %s: %w", field, err)
	}
	return SQLCondition{
		Clause: fmt.Sprintf("%s %s ?", col.name, op),
		Params: []any{value},
	}, nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractConstValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	constExpr, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return nil, fmt.Errorf("expected constant, got %T", e.ExprKind)
	}
	switch kind := constExpr.ConstExpr.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return kind.Int64Value, nil
	case *expr.Constant_DoubleValue:
		return kind.DoubleValue, nil
	case *expr.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}

func priceToMinor(value any) (any, error) {
	var price decimal.Decimal
	switch v := value.(type) {
	case float64:
		price = decimal.NewFromFloat(v)
	case int64:
		price = decimal.NewFromInt(v)
	default:
		return nil, fmt.Errorf("expected a number, got %T", value)
	}
	price = price.Round(domain.PriceScale)
	if price.Abs().GreaterThan(domain.MaxPrice) {
		return nil, fmt.Errorf("price %s is out of range", price)
	}
	return domain.ToMinorUnits(price), nil
}

func integer(value any) (any, error) {
	v, ok := value.(int64)
	if !ok {
		return nil, fmt.Errorf("expected an integer, got %T", value)
	}
	return v, nil
}

func plainString(value any) (any, error) {
	v, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string, got %T", value)
	}
	return v, nil
}

func lowerString(value any) (any, error) {
	v, err := plainString(value)
	if err != nil {
		return nil, err
	}
	return strings.ToLower(v.(string)), nil
}

func upperString(value any) (any, error) {
	v, err := plainString(value)
	if err != nil {
		return nil, err
	}
	return strings.ToUpper(v.(string)), nil
}
