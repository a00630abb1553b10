package service

import (
	"regexp"
	"strings"
)

// DocumentFailure pins one ingestion failure message to the stored file it
// refers to.
type DocumentFailure struct {
	FileURI      string
	ErrorMessage string
}

var (
	failureFilesRe  = regexp.MustCompile(`\[Files:\s*([^\]]*)\]`)
	ignoredCountRe  = regexp.MustCompile(`Ignored\s+\d+`)
	failureBlockSep = "Encountered error:"
)

// ParseFailureReasons converts the raw failure-reason strings an ingestion
// job reports into per-file failures. Each reason may carry several
// "Encountered error:" blocks, and each block may name several files; one
// DocumentFailure is produced per (block, file) pair. Blocks that name no
// files are dropped, since they cannot be pinned to a material.
func ParseFailureReasons(reasons []string) []DocumentFailure {
	var failures []DocumentFailure
	for _, reason := range reasons {
		for _, block := range strings.Split(reason, failureBlockSep) {
			block = strings.TrimSpace(block)
			if block == "" {
				continue
			}

			m := failureFilesRe.FindStringSubmatch(block)
			if m == nil {
				continue
			}

			message := cleanFailureMessage(strings.TrimSpace(failureFilesRe.ReplaceAllString(block, "")))
			for _, file := range strings.Split(m[1], ",") {
				file = strings.TrimSpace(file)
				if file == "" {
					continue
				}
				failures = append(failures, DocumentFailure{
					FileURI:      file,
					ErrorMessage: message,
				})
			}
		}
	}
	return failures
}

// cleanFailureMessage rewrites a batch-level message so it reads correctly
// when attached to a single file.
func cleanFailureMessage(msg string) string {
	msg = ignoredCountRe.ReplaceAllString(msg, "Ignored")
	msg = strings.ReplaceAll(msg, "files", "file")
	msg = strings.ReplaceAll(msg, "their", "its")
	return strings.TrimSpace(strings.TrimSuffix(msg, ".")) + "."
}
