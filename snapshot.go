package adengine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"maps"
	"slices"

	"github.com/AdguardTeam/adengine/filterlist"
	"github.com/AdguardTeam/adengine/internal/wire"
	"github.com/AdguardTeam/adengine/rules"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/c2h5oh/datasize"
	"github.com/klauspost/compress/zstd"
)

// Snapshot errors.
const (
	// ErrBadMagic is returned when the data is not an engine snapshot.
	ErrBadMagic errors.Error = "bad snapshot magic"

	// ErrBadVersion is returned when the snapshot has been written by an
	// incompatible version of the engine.
	ErrBadVersion errors.Error = "unsupported snapshot version"

	// ErrChecksum is returned when the snapshot data is corrupted.
	ErrChecksum errors.Error = "snapshot checksum mismatch"

	// ErrSnapshotTooLarge is returned when the snapshot or its decompressed
	// payload exceeds [MaxSnapshotSize].
	ErrSnapshotTooLarge errors.Error = "snapshot is too large"
)

// MaxSnapshotSize is the maximum size of a snapshot and of its decompressed
// payload.
const MaxSnapshotSize = 256 * datasize.MB

// snapshotMagic is the prefix of every snapshot.
const snapshotMagic = "ADEN"

// snapshotVersion is the version of the snapshot format.  It must be
// increased on every incompatible change of the payload.
const snapshotVersion byte = 1

// snapshotHeaderLen is the length of the magic, the version and the CRC-32
// of the compressed payload.
const snapshotHeaderLen = len(snapshotMagic) + 1 + 4

// Serialize returns the snapshot of the engine's index.  The result only
// depends on the set of rules in the engine, so serializing engines built from
// the same lists gives identical data.  Enabled tags, resources and compiled
// regular expressions are not included.
func (e *Engine) Serialize() (data []byte, err error) {
	payload, err := e.encodePayload()
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(
		nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, enc.Close()) }()

	compressed := enc.EncodeAll(payload, nil)

	data = make([]byte, snapshotHeaderLen, snapshotHeaderLen+len(compressed))
	copy(data, snapshotMagic)
	data[len(snapshotMagic)] = snapshotVersion
	binary.BigEndian.PutUint32(data[len(snapshotMagic)+1:], crc32.ChecksumIEEE(compressed))

	return append(data, compressed...), nil
}

// encodePayload encodes the rules and the lookup tables of the engine.
func (e *Engine) encodePayload() (payload []byte, err error) {
	w := wire.NewWriter(0)

	idxs := e.network.ruleIdxs()
	w.Uvarint(uint64(len(idxs)))
	for _, idx := range idxs {
		rule := e.storage.RetrieveNetworkRule(idx)
		if rule == nil {
			return nil, fmt.Errorf("no network rule at index %d", idx)
		}

		rules.EncodeNetworkRule(w, rule)
	}

	w.Uvarint(uint64(len(e.cosmetic.rules)))
	for _, rule := range e.cosmetic.rules {
		rules.EncodeCosmeticRule(w, rule)
	}

	e.network.encodeTables(w)

	return w.Bytes(), nil
}

// Deserialize creates an engine from a snapshot written by
// [Engine.Serialize].  It returns an error if data is empty, truncated,
// corrupted, or has been written by an incompatible version.  The tags and
// the resources must be set up again.
func Deserialize(c *Config, data []byte) (e *Engine, err error) {
	defer func() { err = errors.Annotate(err, "deserializing snapshot: %w") }()

	payload, err := decompressSnapshot(data)
	if err != nil {
		return nil, err
	}

	r := wire.NewReader(payload)

	networkRules, err := decodeNetworkRules(r)
	if err != nil {
		return nil, err
	}

	cosmeticRules, err := decodeCosmeticRules(r)
	if err != nil {
		return nil, err
	}

	s, err := newParsedStorage(c, networkRules, cosmeticRules)
	if err != nil {
		return nil, err
	}

	idxs := make([]int64, 0, len(networkRules))
	for _, rule := range networkRules {
		idxs = append(idxs, rule.ID)
	}

	network, err := decodeNetworkEngine(s, idxs, r)
	if err != nil {
		return nil, err
	}

	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%d bytes of trailing data", r.Remaining())
	}

	return newEngine(c, s, network, newCosmeticEngine(cosmeticRules)), nil
}

// decompressSnapshot validates the header of data and returns the
// decompressed payload.
func decompressSnapshot(data []byte) (payload []byte, err error) {
	switch {
	case uint64(len(data)) > MaxSnapshotSize.Bytes():
		return nil, ErrSnapshotTooLarge
	case len(data) < snapshotHeaderLen:
		return nil, fmt.Errorf("%w: %d bytes", ErrBadMagic, len(data))
	case !bytes.HasPrefix(data, []byte(snapshotMagic)):
		return nil, ErrBadMagic
	case data[len(snapshotMagic)] != snapshotVersion:
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, data[len(snapshotMagic)])
	}

	compressed := data[snapshotHeaderLen:]
	sum := binary.BigEndian.Uint32(data[len(snapshotMagic)+1:])
	if crc32.ChecksumIEEE(compressed) != sum {
		return nil, ErrChecksum
	}

	dec, err := zstd.NewReader(
		nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(MaxSnapshotSize.Bytes()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	defer dec.Close()

	payload, err = dec.DecodeAll(compressed, nil)
	if err != nil {
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
			return nil, ErrSnapshotTooLarge
		}

		return nil, fmt.Errorf("decompressing: %w", err)
	}

	return payload, nil
}

// decodeNetworkRules reads the network rules.  The rules must be in the
// ascending order of their indexes.
func decodeNetworkRules(r *wire.Reader) (rs []*rules.NetworkRule, err error) {
	n := r.Len()
	rs = make([]*rules.NetworkRule, 0, n)
	for i := range n {
		var rule *rules.NetworkRule
		rule, err = rules.DecodeNetworkRule(r)
		if err != nil {
			return nil, fmt.Errorf("network rule at index %d: %w", i, err)
		}

		if i > 0 && rs[i-1].ID >= rule.ID {
			return nil, fmt.Errorf("network rule at index %d: unordered id %d", i, rule.ID)
		}

		rs = append(rs, rule)
	}

	return rs, r.Err()
}

// decodeCosmeticRules reads the cosmetic rules.  The rules must be in the
// ascending order of their indexes.
func decodeCosmeticRules(r *wire.Reader) (rs []*rules.CosmeticRule, err error) {
	n := r.Len()
	rs = make([]*rules.CosmeticRule, 0, n)
	for i := range n {
		var rule *rules.CosmeticRule
		rule, err = rules.DecodeCosmeticRule(r)
		if err != nil {
			return nil, fmt.Errorf("cosmetic rule at index %d: %w", i, err)
		}

		if i > 0 && rs[i-1].ID >= rule.ID {
			return nil, fmt.Errorf("cosmetic rule at index %d: unordered id %d", i, rule.ID)
		}

		rs = append(rs, rule)
	}

	return rs, r.Err()
}

// newParsedStorage returns a storage with the decoded rules grouped into
// lists by their list identifiers.
func newParsedStorage(
	c *Config,
	networkRules []*rules.NetworkRule,
	cosmeticRules []*rules.CosmeticRule,
) (s *filterlist.RuleStorage, err error) {
	byList := map[int][]rules.Rule{}
	for _, rule := range networkRules {
		byList[rule.FilterListID] = append(byList[rule.FilterListID], rule)
	}

	for _, rule := range cosmeticRules {
		byList[rule.FilterListID] = append(byList[rule.FilterListID], rule)
	}

	var lists []filterlist.RuleList
	for _, id := range slices.Sorted(maps.Keys(byList)) {
		var l *filterlist.ParsedRuleList
		l, err = filterlist.NewParsedRuleList(id, byList[id])
		if err != nil {
			return nil, err
		}

		lists = append(lists, l)
	}

	return filterlist.NewRuleStorage(c.logger(), lists)
}
