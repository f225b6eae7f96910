package hxdrive

import (
	"fmt"

	"golang.org/x/net/html"
)

// SwapMode defines how response content replaces or augments the target.
//
// The six positional modes mirror the standard hypermedia insertion points;
// SwapDelete and SwapNone exist for responses that only remove an element
// or carry side effects.
type SwapMode string

const (
	// SwapOuter replaces the entire target element including its tag.
	SwapOuter SwapMode = "outerHTML"

	// SwapInner replaces only the target's contents, preserving the node
	// itself. This is the engine default and the fallback for
	// unrecognized modes.
	SwapInner SwapMode = "innerHTML"

	// SwapBeforeBegin inserts the content before the target element.
	SwapBeforeBegin SwapMode = "beforebegin"

	// SwapAfterBegin prepends the content inside the target.
	SwapAfterBegin SwapMode = "afterbegin"

	// SwapBeforeEnd appends the content inside the target. Useful for
	// adding items to lists.
	SwapBeforeEnd SwapMode = "beforeend"

	// SwapAfterEnd inserts the content after the target element.
	SwapAfterEnd SwapMode = "afterend"

	// SwapDelete removes the target element; content is ignored.
	SwapDelete SwapMode = "delete"

	// SwapNone performs no swap; content is discarded.
	SwapNone SwapMode = "none"
)

// knownSwapMode reports whether m is part of the vocabulary.
func knownSwapMode(m SwapMode) bool {
	switch m {
	case SwapOuter, SwapInner, SwapBeforeBegin, SwapAfterBegin,
		SwapBeforeEnd, SwapAfterEnd, SwapDelete, SwapNone:
		return true
	}
	return false
}

// swapNodes applies mode to target with the given detached nodes.
//
// Callers are responsible for pre-activating declarative elements inside
// nodes before calling, so trigger wiring happens exactly once regardless
// of activation order.
func swapNodes(target *html.Node, nodes []*html.Node, mode SwapMode) error {
	if target == nil {
		return fmt.Errorf("%w: swap target is nil", ErrNoTarget)
	}

	switch mode {
	case SwapInner:
		for target.FirstChild != nil {
			target.RemoveChild(target.FirstChild)
		}
		for _, n := range nodes {
			detach(n)
			target.AppendChild(n)
		}

	case SwapOuter:
		parent := target.Parent
		if parent == nil {
			return fmt.Errorf("%w: cannot replace detached element", ErrNoTarget)
		}
		for _, n := range nodes {
			detach(n)
			parent.InsertBefore(n, target)
		}
		parent.RemoveChild(target)

	case SwapBeforeBegin:
		parent := target.Parent
		if parent == nil {
			return fmt.Errorf("%w: cannot insert before detached element", ErrNoTarget)
		}
		for _, n := range nodes {
			detach(n)
			parent.InsertBefore(n, target)
		}

	case SwapAfterBegin:
		ref := target.FirstChild
		for _, n := range nodes {
			detach(n)
			if ref != nil {
				target.InsertBefore(n, ref)
			} else {
				target.AppendChild(n)
			}
		}

	case SwapBeforeEnd:
		for _, n := range nodes {
			detach(n)
			target.AppendChild(n)
		}

	case SwapAfterEnd:
		parent := target.Parent
		if parent == nil {
			return fmt.Errorf("%w: cannot insert after detached element", ErrNoTarget)
		}
		ref := target.NextSibling
		for _, n := range nodes {
			detach(n)
			if ref != nil {
				parent.InsertBefore(n, ref)
			} else {
				parent.AppendChild(n)
			}
		}

	case SwapDelete:
		detach(target)

	case SwapNone:
		// Content discarded.

	default:
		return fmt.Errorf("%w: unknown swap mode %q", ErrConfig, mode)
	}
	return nil
}
