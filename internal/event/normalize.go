package event

import (
	"regexp"
	"strings"
)

var (
	// com.example.Foo$$Lambda$12/0x0000000800b4c840 -> com.example.Foo$$Lambda$
	javaLambdaRe = regexp.MustCompile(`\$\$Lambda\$[0-9]+/(0x)?[0-9a-fA-F]+`)
	// sun.reflect.GeneratedMethodAccessor42 -> sun.reflect.GeneratedMethodAccessor
	javaGeneratedRe = regexp.MustCompile(`^(sun\.reflect\.Generated(Serialization)?(Method|Constructor)Accessor)[0-9]+$`)
	// bundle.3f9a1c2e.js -> bundle.<hash>.js
	jsBundleHashRe = regexp.MustCompile(`([./-])[0-9a-f]{8,}([./-])`)
	// -[Foo bar]_block_invoke_2 -> -[Foo bar]_block_invoke
	blockSuffixRe = regexp.MustCompile(`_block_invoke(_[0-9]+)?$`)
)

// normalizeModule strips generated identifiers that differ between builds.
func normalizeModule(module, platform string) string {
	if platform == "java" {
		module = javaLambdaRe.ReplaceAllString(module, "$$$$Lambda$$")
		module = javaGeneratedRe.ReplaceAllString(module, "$1")
	}
	return module
}

// normalizeFilename removes query strings, fragments and content hashes
// from script file names.
func normalizeFilename(filename, platform string) string {
	if i := strings.IndexAny(filename, "?#"); i >= 0 {
		filename = filename[:i]
	}
	switch platform {
	case "javascript", "node":
		filename = jsBundleHashRe.ReplaceAllString(filename, "$1<hash>$2")
	}
	return filename
}

func normalizeFunction(function, platform string) string {
	switch platform {
	case "cocoa", "objc", "swift", "native":
		function = blockSuffixRe.ReplaceAllString(function, "_block_invoke")
	}
	return function
}
