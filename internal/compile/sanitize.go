package compile

import (
	"fmt"
	"regexp"
	"strings"
)

// forbiddenPrimitives are TeX constructs that reach outside the scratch directory or spawn processes
var forbiddenPrimitives = []string{
	`\write18`,
	`\immediate\write`,
	`\openout`,
	`\openin`,
	`\ShellEscape`,
	`\directlua`,
	`\catcode`,
}

// fileInclusion matches \input, \include and friends so their targets can be inspected
var fileInclusion = regexp.MustCompile(`\\(input|include|InputIfFileExists|includegraphics|verbatiminput|lstinputlisting)\s*(\[[^\]]*\])?\s*\{([^}]*)\}`)

// CheckSource rejects documents that use shell escape, raw file I/O, or paths outside the working directory.
func CheckSource(source []byte) error {
	text := string(source)
	compact := strings.Join(strings.Fields(text), "")

	for _, primitive := range forbiddenPrimitives {
		if strings.Contains(compact, primitive) {
			return &CompilationError{
				Kind:    KindUnsafeSource,
				Message: fmt.Sprintf("document uses forbidden primitive %s", primitive),
			}
		}
	}

	for _, m := range fileInclusion.FindAllStringSubmatch(text, -1) {
		target := strings.TrimSpace(m[3])
		if strings.HasPrefix(target, "/") || strings.HasPrefix(target, "~") ||
			strings.Contains(target, "..") || strings.Contains(target, ":") {
			return &CompilationError{
				Kind:    KindUnsafeSource,
				Message: fmt.Sprintf("document includes file outside working directory: %s", target),
			}
		}
	}
	return nil
}
