// Command genheader emits nsm.h, a machine-generated C mirror of the NSM
// wire schema's tags, limits and structures for cross-language consumers.
// The header is a packaging artifact; the runtime contract lives in the Go
// packages.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
)

type entry struct {
	name  string
	value uint64
}

var (
	requestTags = []entry{
		{"NSM_REQUEST_DESCRIBE_PCR", 0},
		{"NSM_REQUEST_EXTEND_PCR", 1},
		{"NSM_REQUEST_LOCK_PCR", 2},
		{"NSM_REQUEST_LOCK_PCRS", 3},
		{"NSM_REQUEST_DESCRIBE_NSM", 4},
		{"NSM_REQUEST_ATTESTATION", 5},
		{"NSM_REQUEST_GET_RANDOM", 6},
	}

	responseTags = []entry{
		{"NSM_RESPONSE_DESCRIBE_PCR", 0},
		{"NSM_RESPONSE_EXTEND_PCR", 1},
		{"NSM_RESPONSE_LOCK_PCR", 2},
		{"NSM_RESPONSE_LOCK_PCRS", 3},
		{"NSM_RESPONSE_DESCRIBE_NSM", 4},
		{"NSM_RESPONSE_ATTESTATION", 5},
		{"NSM_RESPONSE_GET_RANDOM", 6},
		{"NSM_RESPONSE_ERROR", 7},
	}

	errorCodes = []entry{
		{"NSM_ERROR_SUCCESS", 0},
		{"NSM_ERROR_INVALID_ARGUMENT", 1},
		{"NSM_ERROR_INVALID_INDEX", 2},
		{"NSM_ERROR_INVALID_RESPONSE", 3},
		{"NSM_ERROR_READ_ONLY_INDEX", 4},
		{"NSM_ERROR_INVALID_OPERATION", 5},
		{"NSM_ERROR_BUFFER_TOO_SMALL", 6},
		{"NSM_ERROR_INPUT_TOO_LARGE", 7},
		{"NSM_ERROR_INTERNAL_ERROR", 8},
	}

	digests = []entry{
		{"NSM_DIGEST_SHA256", 0},
		{"NSM_DIGEST_SHA384", 1},
		{"NSM_DIGEST_SHA512", 2},
	}

	documentKeys = []entry{
		{"NSM_DOC_MODULE_ID", 0},
		{"NSM_DOC_DIGEST", 1},
		{"NSM_DOC_TIMESTAMP", 2},
		{"NSM_DOC_PCRS", 3},
		{"NSM_DOC_CERTIFICATE", 4},
		{"NSM_DOC_CABUNDLE", 5},
		{"NSM_DOC_PUBLIC_KEY", 6},
		{"NSM_DOC_USER_DATA", 7},
		{"NSM_DOC_NONCE", 8},
	}
)

func writeEnum(b *strings.Builder, comment, tag string, entries []entry) {
	fmt.Fprintf(b, "/* %s */\n", comment)
	fmt.Fprintf(b, "enum %s {\n", tag)
	for _, e := range entries {
		fmt.Fprintf(b, "  %s = %d,\n", e.name, e.value)
	}
	fmt.Fprintf(b, "};\n\n")
}

func render() string {
	b := &strings.Builder{}

	fmt.Fprintf(b, "/* Code generated by genheader. DO NOT EDIT. */\n\n")
	fmt.Fprintf(b, "#ifndef NSM_H\n#define NSM_H\n\n")
	fmt.Fprintf(b, "#include <stdint.h>\n\n")

	fmt.Fprintf(b, "#define NSM_DEVICE_PATH \"/dev/nsm\"\n")
	fmt.Fprintf(b, "#define NSM_IOCTL_MAGIC 0x0A\n")
	fmt.Fprintf(b, "#define NSM_REQUEST_MAX_SIZE 0x1000\n")
	fmt.Fprintf(b, "#define NSM_RESPONSE_MAX_SIZE 0x3000\n\n")

	writeEnum(b, "Variant tags of the request union.", "nsm_request_tag", requestTags)
	writeEnum(b, "Variant tags of the response union.", "nsm_response_tag", responseTags)
	writeEnum(b, "Error codes carried by NSM_RESPONSE_ERROR.", "nsm_error_code", errorCodes)
	writeEnum(b, "Digest kinds of the PCR bank.", "nsm_digest", digests)
	writeEnum(b, "Field keys of the attestation document map.", "nsm_document_key", documentKeys)

	fmt.Fprintf(b, "/* The two-iovec exchange passed to NSM_IOCTL_MAGIC. */\n")
	fmt.Fprintf(b, "struct nsm_message {\n")
	fmt.Fprintf(b, "  struct iovec request;\n")
	fmt.Fprintf(b, "  struct iovec response;\n")
	fmt.Fprintf(b, "};\n\n")

	fmt.Fprintf(b, "#endif /* NSM_H */\n")

	return b.String()
}

func main() {
	out := flag.String("out", "nsm.h", "path to write the header to")
	flag.Parse()

	err := os.WriteFile(*out, []byte(render()), 0644)
	if err != nil {
		log.Fatal(err)
	}
}
