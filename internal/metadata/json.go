package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/engine"
	"github.com/tuannm99/novatile/internal/metrics"
)

var errInvalidItem = errors.New("metadata: invalid json item")

const payloadSchema = `{
  "type": "object",
  "required": ["metadata"],
  "properties": {
    "metadata_num": {"type": "integer", "minimum": 0},
    "metadata": {"type": "array"}
  }
}`

const itemSchema = `{
  "type": "object",
  "required": ["value_type", "value"],
  "properties": {
    "key": {"type": "string"},
    "value_type": {"type": ["integer", "string"]},
    "value_num": {"type": "integer", "minimum": 0},
    "value": {"type": ["array", "string", "number"]}
  }
}`

var (
	payloadValidator = mustSchema(payloadSchema)
	itemValidator    = mustSchema(itemSchema)
)

func mustSchema(s string) *gojsonschema.Schema {
	sch, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return sch
}

func validate(sch *gojsonschema.Schema, doc []byte) error {
	res, err := sch.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidItem, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, d := range res.Errors() {
			msgs = append(msgs, d.String())
		}
		return fmt.Errorf("%w: %s", errInvalidItem, strings.Join(msgs, "; "))
	}
	return nil
}

// Item is the JSON form of one metadata entry. value_type is accepted
// either as the numeric datatype tag or by name.
type Item struct {
	Key       string          `json:"key"`
	ValueType json.RawMessage `json:"value_type"`
	ValueNum  uint32          `json:"value_num,omitempty"`
	Value     json.RawMessage `json:"value"`
}

func skip(key string, err error) {
	metrics.MetadataSkipped.Inc()
	slog.Warn("metadata: skipped json item", "key", key, "err", err)
}

// PutJSON applies a {"metadata": [item, ...]} payload and returns how many
// items were stored. Nothing is returned as an error: a malformed payload
// or item is logged and skipped.
func PutJSON(s Store, payload []byte) int {
	if err := validate(payloadValidator, payload); err != nil {
		skip("", err)
		return 0
	}
	var doc struct {
		Metadata []json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		skip("", err)
		return 0
	}
	stored := 0
	for _, raw := range doc.Metadata {
		if putItem(s, "", raw) {
			stored++
		}
	}
	return stored
}

// PutJSONForKey stores one item under key. An empty key falls back to the
// item's own "key". It reports whether the item was stored.
func PutJSONForKey(s Store, key string, item []byte) bool {
	return putItem(s, key, item)
}

func putItem(s Store, key string, raw []byte) bool {
	if err := validate(itemValidator, raw); err != nil {
		skip(key, err)
		return false
	}
	var it Item
	if err := json.Unmarshal(raw, &it); err != nil {
		skip(key, err)
		return false
	}
	if key == "" {
		key = it.Key
	}
	if key == "" {
		skip(key, fmt.Errorf("%w: no key", errInvalidItem))
		return false
	}
	dt, num, value, err := decodeItem(it)
	if err != nil {
		skip(key, err)
		return false
	}
	if err := s.PutMetadata(key, dt, num, value); err != nil {
		skip(key, err)
		return false
	}
	return true
}

func parseType(raw json.RawMessage) (datatype.Datatype, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return datatype.Parse(name)
	}
	n, err := strconv.ParseUint(string(bytes.TrimSpace(raw)), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: value_type %s", errInvalidItem, raw)
	}
	dt := datatype.Datatype(n)
	if !dt.Valid() {
		return 0, fmt.Errorf("%w: %d", datatype.ErrUnknownDatatype, n)
	}
	return dt, nil
}

func decodeItem(it Item) (datatype.Datatype, uint32, []byte, error) {
	dt, err := parseType(it.ValueType)
	if err != nil {
		return 0, 0, nil, err
	}
	if dt == datatype.Any {
		return 0, 0, nil, fmt.Errorf("%w: value_type ANY", errInvalidItem)
	}

	var text string
	if json.Unmarshal(it.Value, &text) == nil {
		if !dt.IsString() {
			return 0, 0, nil, fmt.Errorf("%w: string value for %s", errInvalidItem, dt)
		}
		b, err := datatype.ParseValue(dt, text)
		if err != nil {
			return 0, 0, nil, err
		}
		return dt, uint32(uint64(len(b)) / dt.Size()), b, nil
	}

	var nums []json.Number
	if err := json.Unmarshal(it.Value, &nums); err != nil {
		var one json.Number
		if err := json.Unmarshal(it.Value, &one); err != nil {
			return 0, 0, nil, fmt.Errorf("%w: value: %w", errInvalidItem, err)
		}
		nums = []json.Number{one}
	}
	if dt.IsString() {
		return 0, 0, nil, fmt.Errorf("%w: numeric value for %s", errInvalidItem, dt)
	}
	if it.ValueNum != 0 && int(it.ValueNum) != len(nums) {
		return 0, 0, nil, fmt.Errorf("%w: value_num %d but %d values", errInvalidItem, it.ValueNum, len(nums))
	}
	out := make([]byte, 0, uint64(len(nums))*dt.Size())
	for _, n := range nums {
		b, err := datatype.ParseValue(dt, n.String())
		if err != nil {
			return 0, 0, nil, err
		}
		out = append(out, b...)
	}
	return dt, uint32(len(nums)), out, nil
}

type itemOut struct {
	Key       string `json:"key"`
	ValueType string `json:"value_type"`
	ValueNum  uint32 `json:"value_num"`
	Value     any    `json:"value"`
}

func encodeItem(m engine.Metadata) itemOut {
	out := itemOut{Key: m.Key, ValueType: m.Type.String(), ValueNum: m.Num}
	if m.Type.IsString() {
		out.Value = datatype.Format(m.Type, m.Value)
		return out
	}
	vals := []json.Number{}
	if len(m.Value) > 0 {
		for _, v := range strings.Split(datatype.Format(m.Type, m.Value), ",") {
			vals = append(vals, json.Number(v))
		}
	}
	out.Value = vals
	return out
}

// GetJSON renders the entry under key. It reports false, after logging,
// when the key is missing or cannot be rendered.
func GetJSON(s Store, key string) ([]byte, bool) {
	m, err := s.GetMetadata(key)
	if err != nil {
		slog.Warn("metadata: json lookup failed", "key", key, "err", err)
		return nil, false
	}
	b, err := json.Marshal(encodeItem(m))
	if err != nil {
		skip(key, err)
		return nil, false
	}
	return b, true
}

// AllJSON renders every entry as {"metadata_num": n, "metadata": [...]}.
// Entries that cannot be rendered are logged and left out.
func AllJSON(s Store) []byte {
	all, err := s.AllMetadata()
	if err != nil {
		slog.Warn("metadata: json listing failed", "err", err)
		all = nil
	}
	items := make([]json.RawMessage, 0, len(all))
	for _, m := range all {
		b, err := json.Marshal(encodeItem(m))
		if err != nil {
			skip(m.Key, err)
			continue
		}
		items = append(items, b)
	}
	b, _ := json.Marshal(struct {
		Num      int               `json:"metadata_num"`
		Metadata []json.RawMessage `json:"metadata"`
	}{len(items), items})
	return b
}
