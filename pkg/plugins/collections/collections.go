// Package collections provides in-memory operations on string collections.
package collections

import (
	"context"
	"fmt"
	"slices"

	"github.com/morezero/plugin-registry/pkg/registry"
	"github.com/morezero/plugin-registry/pkg/semtype"
)

const (
	// GroupName is the registry group the operations are registered under.
	GroupName = "collections"
	// Version of the operation surface.
	Version = "1.0.0"
)

func collectionParam(name, description string) registry.ParameterSpec {
	return registry.ParameterSpec{Name: name, Type: semtype.StringArray, Description: description, Required: true}
}

var itemsParam = collectionParam("collection", "String items collection")

// Group returns the collections plugin group.
func Group() registry.Group {
	return registry.Group{
		Name:        GroupName,
		Version:     Version,
		Description: "Operations on collections of strings",
		Operations: []registry.OperationDescriptor{
			{
				Name:        "append",
				Description: "Append a string item into a collection of strings.",
				Parameters: []registry.ParameterSpec{
					itemsParam,
					{Name: "item", Type: semtype.String, Description: "String item to append", Required: true},
				},
				Returns: semtype.StringArray,
				Impl:    appendItem,
			},
			{
				Name:        "first",
				Description: "Returns first string item in a collection of strings, or an empty string when it is empty.",
				Parameters:  []registry.ParameterSpec{itemsParam},
				Returns:     semtype.String,
				Impl:        first,
			},
			{
				Name:        "last",
				Description: "Returns last string item in a collection of strings, or an empty string when it is empty.",
				Parameters:  []registry.ParameterSpec{itemsParam},
				Returns:     semtype.String,
				Impl:        last,
			},
			{
				Name:        "order",
				Description: "Sorts a collection of strings in ascending order.",
				Parameters:  []registry.ParameterSpec{itemsParam},
				Returns:     semtype.StringArray,
				Impl:        order,
			},
			{
				Name:        "orderDescending",
				Description: "Sorts a collection of strings in descending order.",
				Parameters:  []registry.ParameterSpec{itemsParam},
				Returns:     semtype.StringArray,
				Impl:        orderDescending,
			},
			{
				Name:        "concat",
				Description: "Concats two collections of strings.",
				Parameters: []registry.ParameterSpec{
					collectionParam("firstCollection", "First string items collection"),
					collectionParam("secondCollection", "Second string items collection"),
				},
				Returns: semtype.StringArray,
				Impl:    concat,
			},
			{
				Name:        "take",
				Description: "Returns a specified number of continuous items from the start of a collection of strings.",
				Parameters: []registry.ParameterSpec{
					itemsParam,
					{Name: "count", Type: semtype.Integer, Description: "The number of items to return", Required: true},
				},
				Returns: semtype.StringArray,
				Impl:    take,
			},
			{
				Name:        "skip",
				Description: "Bypasses a specified number of elements in a collection of strings.",
				Parameters: []registry.ParameterSpec{
					itemsParam,
					{Name: "count", Type: semtype.Integer, Description: "The number of items to skip", Required: true},
				},
				Returns: semtype.StringArray,
				Impl:    skip,
			},
			{
				Name:        "getValue",
				Description: "Gets the value at the specified position in a collection of strings.",
				Parameters: []registry.ParameterSpec{
					itemsParam,
					{Name: "index", Type: semtype.Integer, Description: "The position of the collection item to get", Required: true},
				},
				Returns: semtype.String,
				Impl:    getValue,
			},
			{
				Name:        "reverse",
				Description: "Inverts the order of the items in a collection of strings.",
				Parameters:  []registry.ParameterSpec{itemsParam},
				Returns:     semtype.StringArray,
				Impl:        reverse,
			},
			{
				Name:        "count",
				Description: "Returns the number of items in a collection of strings.",
				Parameters:  []registry.ParameterSpec{itemsParam},
				Returns:     semtype.Integer,
				Impl:        count,
			},
		},
	}
}

// Register adds the collections group to b.
func Register(b *registry.Builder) error {
	return b.RegisterGroup(Group())
}

func appendItem(_ context.Context, args *registry.Arguments) (any, error) {
	return append(slices.Clone(args.Strings("collection")), args.String("item")), nil
}

func first(_ context.Context, args *registry.Arguments) (any, error) {
	items := args.Strings("collection")
	if len(items) == 0 {
		return "", nil
	}
	return items[0], nil
}

func last(_ context.Context, args *registry.Arguments) (any, error) {
	items := args.Strings("collection")
	if len(items) == 0 {
		return "", nil
	}
	return items[len(items)-1], nil
}

func order(_ context.Context, args *registry.Arguments) (any, error) {
	items := slices.Clone(args.Strings("collection"))
	slices.Sort(items)
	return items, nil
}

func orderDescending(_ context.Context, args *registry.Arguments) (any, error) {
	items := slices.Clone(args.Strings("collection"))
	slices.Sort(items)
	slices.Reverse(items)
	return items, nil
}

func concat(_ context.Context, args *registry.Arguments) (any, error) {
	return slices.Concat(args.Strings("firstCollection"), args.Strings("secondCollection")), nil
}

// take and skip clamp count into [0, len] so they never fail on size.
func take(_ context.Context, args *registry.Arguments) (any, error) {
	items := args.Strings("collection")
	n := clamp(args.Int64("count"), len(items))
	return slices.Clone(items[:n]), nil
}

func skip(_ context.Context, args *registry.Arguments) (any, error) {
	items := args.Strings("collection")
	n := clamp(args.Int64("count"), len(items))
	return slices.Clone(items[n:]), nil
}

func getValue(_ context.Context, args *registry.Arguments) (any, error) {
	items := args.Strings("collection")
	index := args.Int64("index")
	if index < 0 || index >= int64(len(items)) {
		return nil, fmt.Errorf("index %d is out of range for a collection of %d items", index, len(items))
	}
	return items[index], nil
}

func reverse(_ context.Context, args *registry.Arguments) (any, error) {
	items := slices.Clone(args.Strings("collection"))
	slices.Reverse(items)
	return items, nil
}

func count(_ context.Context, args *registry.Arguments) (any, error) {
	return int64(len(args.Strings("collection"))), nil
}

func clamp(n int64, size int) int {
	switch {
	case n <= 0:
		return 0
	case n >= int64(size):
		return size
	}
	return int(n)
}
