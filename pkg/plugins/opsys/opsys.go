// Package opsys exposes environment variables and basic file system actions as operations.
package opsys

import (
	"github.com/morezero/plugin-registry/pkg/registry"
	"github.com/morezero/plugin-registry/pkg/semtype"
)

const (
	// GroupName is the registry group the operations are registered under.
	GroupName = "opsys"
	// Version of the operation surface.
	Version = "1.0.0"

	logPrefix = "opsys:opsys"
)

func required(name string, t semtype.Type, description string) registry.ParameterSpec {
	return registry.ParameterSpec{Name: name, Type: t, Description: description, Required: true}
}

// Group returns the opsys plugin group.
func Group() registry.Group {
	return registry.Group{
		Name:        GroupName,
		Version:     Version,
		Description: "Environment variables and file system access",
		Operations: []registry.OperationDescriptor{
			{
				Name:        "appendToEnvironmentVariable",
				Description: "Appends given values to environment variable name.",
				Parameters: []registry.ParameterSpec{
					required("name", semtype.String, "Environment variable name"),
					required("values", semtype.StringArray, "Values to append"),
				},
				Returns: semtype.String,
				Impl:    appendToEnvironmentVariable,
			},
			{
				Name:        "getEnvironmentVariable",
				Description: "Returns the value of an environment variable with the given name.",
				Parameters: []registry.ParameterSpec{
					required("name", semtype.String, "Environment variable name"),
					{Name: "defaultValue", Type: semtype.String, Description: "Default value", Default: ""},
				},
				Returns: semtype.String,
				Impl:    getEnvironmentVariable,
			},
			{
				Name:        "getEnvironmentVariables",
				Description: "Returns currently available environment variables.",
				Returns:     semtype.Dictionary,
				Impl:        getEnvironmentVariables,
			},
			{
				Name:        "removeEnvironmentVariable",
				Description: "Deletes the specified environment variables.",
				Parameters: []registry.ParameterSpec{
					required("names", semtype.StringArray, "Environment variable names"),
				},
				Returns: semtype.Void,
				Impl:    removeEnvironmentVariable,
			},
			{
				Name:        "copyDirectory",
				Description: "Copies the source directory into the destination.",
				Parameters: []registry.ParameterSpec{
					required("sourceDirectory", semtype.String, "Source directory"),
					required("destinationDirectory", semtype.String, "Destination directory"),
					{Name: "recursive", Type: semtype.Boolean, Description: "Recursively copies subdirectories", Default: false},
				},
				Returns: semtype.Void,
				Impl:    copyDirectory,
			},
			{
				Name:        "copyFile",
				Description: "Copies the source file into the destination.",
				Parameters: []registry.ParameterSpec{
					required("sourcePath", semtype.String, "Source file"),
					required("destinationPath", semtype.String, "Destination file"),
				},
				Returns: semtype.Void,
				Impl:    copyFile,
			},
			{
				Name:        "createBinaryFile",
				Description: "Creates a binary file with the given content.",
				Parameters: []registry.ParameterSpec{
					required("path", semtype.String, "Destination file"),
					required("content", semtype.Bytes, "File binary content"),
				},
				Returns: semtype.Void,
				Impl:    createBinaryFile,
			},
			{
				Name:        "getBinaryFile",
				Description: "Read a binary file.",
				Parameters: []registry.ParameterSpec{
					required("path", semtype.String, "Source file"),
				},
				Returns: semtype.Bytes,
				Impl:    getBinaryFile,
			},
			{
				Name:        "listDirectory",
				Description: "Returns the full paths of files in a directory matching a glob pattern (** descends into subdirectories).",
				Parameters: []registry.ParameterSpec{
					required("searchDirectory", semtype.String, "Search directory"),
					{Name: "pattern", Type: semtype.String, Description: "Items filter", Default: "*"},
				},
				Returns: semtype.StringArray,
				Impl:    listDirectory,
			},
		},
	}
}

// Register adds the opsys group to b.
func Register(b *registry.Builder) error {
	return b.RegisterGroup(Group())
}
