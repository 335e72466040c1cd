package manifest

import (
	"encoding/json"

	"github.com/byteness/moduledelivery/iso8601"
)

// Canonicalize produces the exact byte sequence the server signs: the body
// minus the signature, sorted keys, ISO-8601 timestamp with fractional
// seconds. encoding/json sorts map[string]any keys alphabetically when
// marshaling, so building the canonical form as nested maps (rather than
// relying on a struct's declaration order) is what actually gives us
// deterministic key ordering — this is the cross-language compatibility
// hazard called out in spec §9 and must track the server's encoder exactly.
//
// download_url is intentionally excluded: the manifest endpoint's wire
// format (spec §6) signs only id/name/version/checksum/size/environment per
// module; the download URL is not part of the signed contract.
func Canonicalize(body Body) ([]byte, error) {
	modules := make([]map[string]any, 0, len(body.Modules))
	for _, m := range body.Modules {
		modules = append(modules, map[string]any{
			"id":          m.ID,
			"name":        m.Name,
			"version":     m.SemanticVersion,
			"checksum":    m.ChecksumHex,
			"size":        m.SizeBytes,
			"environment": m.DeclaredEnvironment,
		})
	}

	canonical := map[string]any{
		"modules":     modules,
		"timestamp":   iso8601.Format(body.Timestamp),
		"nonce":       body.Nonce,
		"environment": body.Environment,
	}

	return json.Marshal(canonical)
}
