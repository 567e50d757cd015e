package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/jpalmerr/cellstore/internal/pathops"
)

// OpsValidatorKey is the validator that rejects states an event op could
// not produce, such as inc on a string. It runs before configured
// validators.
const OpsValidatorKey = "ops"

// opFailure stands in for the next state when an op cannot apply. The ops
// validator rejects it, so the dispatch fails and the state is unchanged.
type opFailure struct {
	err error
}

func (f opFailure) Error() string { return f.err.Error() }

func rejectFailedOps(state any) bool {
	_, failed := state.(opFailure)
	return !failed
}

type operand int

const (
	// every argument extends the path
	operandNone operand = iota
	// the last argument is the operand, the rest extend the path
	operandLast
	// at most one numeric argument, no path extension
	operandStep
	// no arguments at all
	operandForbidden
)

type eventOp struct {
	operand operand
	apply   func(doc any, path pathops.Path, value any, ev EventConfig) (any, error)
}

var eventOps = map[string]eventOp{
	"set":    {operand: operandLast, apply: applySet},
	"inc":    {operand: operandStep, apply: applyInc},
	"append": {operand: operandLast, apply: applyAppend},
	"remove": {operand: operandLast, apply: applyRemove},
	"delete": {operand: operandNone, apply: applyDelete},
	"merge":  {operand: operandLast, apply: applyMerge},
	"toggle": {operand: operandNone, apply: applyToggle},
	"reset":  {operand: operandForbidden, apply: applyReset},
}

type subOp func(state any, path pathops.Path, sc SubscriptionConfig) any

var subOps = map[string]subOp{
	"get": selectGet,
	"len": selectLen,
}

func opNames[V any](m map[string]V) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// splitArgs separates path extension segments from the op operand.
func (op eventOp) splitArgs(args []any) (ext []any, value any) {
	switch op.operand {
	case operandLast:
		return args[:len(args)-1], args[len(args)-1]
	case operandStep:
		if len(args) == 1 {
			return nil, args[0]
		}
		return nil, nil
	case operandForbidden:
		return nil, nil
	default:
		return args, nil
	}
}

// checkArgs validates argument shape before the reducer runs.
func (op eventOp) checkArgs(name string, base pathops.Path) func(args []any) error {
	return func(args []any) error {
		args = normalizeArgs(args)
		switch op.operand {
		case operandLast:
			if len(args) == 0 {
				return errors.New("want at least 1 argument, got 0")
			}
		case operandStep:
			if len(args) > 1 {
				return fmt.Errorf("want at most 1 argument, got %d", len(args))
			}
			if len(args) == 1 {
				if _, ok := pathops.Number(args[0]); !ok {
					return fmt.Errorf("want a number, got %s", pathops.TypeName(args[0]))
				}
			}
		case operandForbidden:
			if len(args) != 0 {
				return fmt.Errorf("want no arguments, got %d", len(args))
			}
		}

		ext, value := op.splitArgs(args)
		if err := checkSegments(ext); err != nil {
			return err
		}
		if name == "delete" && len(base)+len(ext) == 0 {
			return errors.New("delete needs a path")
		}
		if name == "merge" {
			if _, ok := value.(map[string]any); !ok {
				return fmt.Errorf("merge wants an object, got %s", pathops.TypeName(value))
			}
		}
		return nil
	}
}

func checkSegments(segs []any) error {
	for i, s := range segs {
		switch v := s.(type) {
		case string:
			if v == "" {
				return fmt.Errorf("path argument %d is empty", i)
			}
		case float64:
		default:
			return fmt.Errorf("path argument %d must be a string or number, got %s", i, pathops.TypeName(s))
		}
	}
	return nil
}

// eventReducer builds the reducer for ev. Op failures yield an opFailure
// state for the ops validator to reject.
func eventReducer(ev EventConfig) (func(state any, args ...any) any, func(args []any) error) {
	op := eventOps[ev.Op]
	base := pathops.MustParse(ev.Path)

	reducer := func(state any, args ...any) any {
		ext, value := op.splitArgs(normalizeArgs(args))
		path := base.Extend(ext...)
		next, err := op.apply(state, path, value, ev)
		if err != nil {
			return opFailure{err: fmt.Errorf("%s %s: %w", ev.Op, displayPath(path), err)}
		}
		return next
	}
	return reducer, op.checkArgs(ev.Op, base)
}

func displayPath(p pathops.Path) string {
	if len(p) == 0 {
		return "."
	}
	return p.String()
}

func applySet(doc any, path pathops.Path, value any, _ EventConfig) (any, error) {
	return pathops.Set(doc, path, value)
}

func applyInc(doc any, path pathops.Path, value any, ev EventConfig) (any, error) {
	step := 1.0
	if ev.Value != nil {
		step, _ = pathops.Number(ev.Value)
	}
	if value != nil {
		step, _ = pathops.Number(value)
	}

	current, ok := pathops.Get(doc, path)
	if !ok || current == nil {
		return pathops.Set(doc, path, step)
	}
	n, ok := pathops.Number(current)
	if !ok {
		return nil, fmt.Errorf("value is %s, not a number", pathops.TypeName(current))
	}
	return pathops.Set(doc, path, n+step)
}

func applyAppend(doc any, path pathops.Path, value any, _ EventConfig) (any, error) {
	current, ok := pathops.Get(doc, path)
	if !ok || current == nil {
		return pathops.Set(doc, path, []any{value})
	}
	list, ok := current.([]any)
	if !ok {
		return nil, fmt.Errorf("value is %s, not a list", pathops.TypeName(current))
	}
	next := make([]any, len(list), len(list)+1)
	copy(next, list)
	return pathops.Set(doc, path, append(next, value))
}

func applyRemove(doc any, path pathops.Path, value any, _ EventConfig) (any, error) {
	current, ok := pathops.Get(doc, path)
	if !ok || current == nil {
		return doc, nil
	}
	list, ok := current.([]any)
	if !ok {
		return nil, fmt.Errorf("value is %s, not a list", pathops.TypeName(current))
	}
	next := make([]any, 0, len(list))
	for _, e := range list {
		if !reflect.DeepEqual(e, value) {
			next = append(next, e)
		}
	}
	if len(next) == len(list) {
		return doc, nil
	}
	return pathops.Set(doc, path, next)
}

func applyDelete(doc any, path pathops.Path, _ any, _ EventConfig) (any, error) {
	next, err := pathops.Delete(doc, path)
	if errors.Is(err, pathops.ErrNotFound) {
		return doc, nil
	}
	return next, err
}

func applyMerge(doc any, path pathops.Path, value any, _ EventConfig) (any, error) {
	patch := value.(map[string]any)
	current, ok := pathops.Get(doc, path)
	if !ok || current == nil {
		current = map[string]any{}
	}
	obj, ok := current.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("value is %s, not an object", pathops.TypeName(current))
	}
	next := make(map[string]any, len(obj)+len(patch))
	for k, v := range obj {
		next[k] = v
	}
	for k, v := range patch {
		next[k] = v
	}
	return pathops.Set(doc, path, next)
}

func applyToggle(doc any, path pathops.Path, _ any, _ EventConfig) (any, error) {
	current, ok := pathops.Get(doc, path)
	if !ok || current == nil {
		return pathops.Set(doc, path, true)
	}
	b, ok := current.(bool)
	if !ok {
		return nil, fmt.Errorf("value is %s, not a bool", pathops.TypeName(current))
	}
	return pathops.Set(doc, path, !b)
}

func applyReset(doc any, path pathops.Path, _ any, ev EventConfig) (any, error) {
	return pathops.Set(doc, path, ev.Value)
}

// subSelector builds the selector for sc. Arguments extend its path.
func subSelector(sc SubscriptionConfig) (func(state any, args ...any) any, func(args []any) error) {
	op := subOps[sc.Op]
	base := pathops.MustParse(sc.Path)

	selector := func(state any, args ...any) any {
		return op(state, base.Extend(normalizeArgs(args)...), sc)
	}
	check := func(args []any) error {
		return checkSegments(normalizeArgs(args))
	}
	return selector, check
}

func selectGet(state any, path pathops.Path, sc SubscriptionConfig) any {
	v, ok := pathops.Get(state, path)
	if !ok {
		return sc.Default
	}
	return v
}

// selectLen yields the length as a float64, or nil for scalars.
func selectLen(state any, path pathops.Path, _ SubscriptionConfig) any {
	v, ok := pathops.Get(state, path)
	if !ok {
		return 0.0
	}
	n, ok := pathops.Len(v)
	if !ok {
		return nil
	}
	return float64(n)
}

// ruleValidator checks the value at vc.Path. Rules other than required
// pass when the value is missing.
func ruleValidator(vc ValidatorConfig) func(state any) bool {
	path := pathops.MustParse(vc.Path)
	rule := vc.Rule

	return func(state any) bool {
		v, ok := pathops.Get(state, path)
		if rule.Kind == "required" {
			return ok && v != nil
		}
		if !ok {
			return true
		}

		switch rule.Kind {
		case "min", "max":
			bound, _ := strconv.ParseFloat(rule.Value, 64)
			n, isNum := pathops.Number(v)
			if !isNum {
				return false
			}
			if rule.Kind == "min" {
				return n >= bound
			}
			return n <= bound
		case "maxlen":
			limit, _ := strconv.Atoi(rule.Value)
			n, measurable := pathops.Len(v)
			return measurable && n <= limit
		case "type":
			return pathops.TypeName(v) == rule.Value
		default:
			return false
		}
	}
}
