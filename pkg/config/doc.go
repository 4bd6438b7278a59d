// Package config provides the configuration value model and the loaders
// for froyo-setup setup content.
//
// # Values
//
// Value is a tagged variant holding null, a boolean, a number, a string,
// a sequence or an ordered Mapping. Every decoder in this package keeps
// mapping keys in source order, since a group without an explicit step
// list runs its keys in that order.
//
// Merge deep-merges two values: mappings merge key by key, anything else is
// replaced by the override. Sequences are replaced as a whole.
//
// # Setup sources
//
// SetupLoader resolves a setup name the same way on every platform: the
// name as given, then with .json, .js, .yaml, .yml, .star, .cue and .hcl
// appended, first relative to the working directory and then relative to
// the setups directory. The file extension selects the decoder:
//
//   - json: order preserving JSON
//   - yaml, yml: YAML via gopkg.in/yaml.v3
//   - js: a CommonJS style script evaluated with goja; module.exports is the content
//   - star: a Starlark module; the global named setup is the content
//   - cue: a CUE file; regular fields are the content
//   - hcl: an HCL file; attributes and blocks are the content
//
// Decoded content is validated against the built-in CUE setup schema:
// every group is a mapping and an optional steps field is a list of strings.
//
// # Usage Example
//
//	loader := config.NewSetupLoader("./setups", log.Logger)
//
//	setup, err := loader.Load(ctx, "webservers")
//	if err != nil {
//	    return err
//	}
//
//	for _, group := range setup.Groups() {
//	    block, _ := setup.Group(group)
//	    fmt.Println(group, block.Keys())
//	}
//
// # Watching
//
// Watcher uses fsnotify to report writes to a set of files, debounced, and
// backs the watch command.
package config
