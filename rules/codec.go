package rules

import (
	"fmt"

	"github.com/AdguardTeam/adengine/internal/wire"
)

// EncodeNetworkRule appends the binary form of f to w.  The fields derived
// from the pattern are not written, [DecodeNetworkRule] recomputes them.
func EncodeNetworkRule(w *wire.Writer, f *NetworkRule) {
	w.Varint(f.ID)
	w.Varint(int64(f.FilterListID))
	w.String(f.RuleText)
	w.String(f.pattern)
	w.Bool(f.Whitelist)
	w.Uvarint(uint64(f.enabledOptions))
	w.Uvarint(uint64(f.disabledOptions))
	w.Uvarint(uint64(f.permittedRequestTypes))
	w.Uvarint(uint64(f.restrictedRequestTypes))
	w.Strings(f.permittedDomains)
	w.Strings(f.restrictedDomains)
	w.String(f.Tag)
	w.String(f.CSP)
	w.String(f.Redirect)
	w.String(f.RemoveParam)
}

// DecodeNetworkRule reads a rule written by [EncodeNetworkRule].
func DecodeNetworkRule(r *wire.Reader) (f *NetworkRule, err error) {
	f = &NetworkRule{
		ID:                     r.Varint(),
		FilterListID:           int(r.Varint()),
		RuleText:               r.String(),
		pattern:                r.String(),
		Whitelist:              r.Bool(),
		enabledOptions:         NetworkRuleOption(r.Uvarint()),
		disabledOptions:        NetworkRuleOption(r.Uvarint()),
		permittedRequestTypes:  RequestType(r.Uvarint()),
		restrictedRequestTypes: RequestType(r.Uvarint()),
		permittedDomains:       r.Strings(),
		restrictedDomains:      r.Strings(),
		Tag:                    r.String(),
		CSP:                    r.String(),
		Redirect:               r.String(),
		RemoveParam:            r.String(),
	}

	if err = r.Err(); err != nil {
		return nil, fmt.Errorf("decoding network rule: %w", err)
	}

	if f.IsOptionEnabled(OptionRemoveparam) {
		f.removeParamRe, err = compileRemoveParam(f.RemoveParam)
		if err != nil {
			return nil, fmt.Errorf("decoding network rule %d: %w", f.ID, err)
		}
	}

	f.finalize()

	return f, nil
}

// EncodeCosmeticRule appends the binary form of f to w.
func EncodeCosmeticRule(w *wire.Writer, f *CosmeticRule) {
	w.Varint(f.ID)
	w.Varint(int64(f.FilterListID))
	w.String(f.RuleText)
	w.String(f.Content)
	w.Uvarint(uint64(f.Type))
	w.Bool(f.Whitelist)
	w.Strings(f.permittedDomains)
	w.Strings(f.restrictedDomains)
}

// DecodeCosmeticRule reads a rule written by [EncodeCosmeticRule].
func DecodeCosmeticRule(r *wire.Reader) (f *CosmeticRule, err error) {
	f = &CosmeticRule{
		ID:                r.Varint(),
		FilterListID:      int(r.Varint()),
		RuleText:          r.String(),
		Content:           r.String(),
		Type:              CosmeticRuleType(r.Uvarint()),
		Whitelist:         r.Bool(),
		permittedDomains:  r.Strings(),
		restrictedDomains: r.Strings(),
	}

	if err = r.Err(); err != nil {
		return nil, fmt.Errorf("decoding cosmetic rule: %w", err)
	}

	if f.Type > CosmeticScriptlet {
		return nil, fmt.Errorf("decoding cosmetic rule %d: bad type %d", f.ID, f.Type)
	}

	return f, nil
}
