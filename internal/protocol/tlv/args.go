package tlv

import "sort"

// Field IDs reserved for command-argument encoding. Application handlers
// are free to use higher IDs for their own schemas; the dispatcher never
// interprets a COMMAND payload, so these constants exist purely as a
// shared convention for callers that opt into structured args.
const (
	FieldArgKey   uint16 = 1
	FieldArgValue uint16 = 2
)

// EncodeStringArgs packs a string-to-string map into a TLV payload as a
// flat, sorted sequence of (key, value) field pairs, so the encoding is
// deterministic across calls with the same map.
func EncodeStringArgs(args map[string]string) []byte {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, 0, len(keys)*2)
	for _, k := range keys {
		fields = append(fields,
			Field{ID: FieldArgKey, Type: TypeString, Value: []byte(k)},
			Field{ID: FieldArgValue, Type: TypeString, Value: []byte(args[k])},
		)
	}
	return EncodeFields(fields)
}

// DecodeStringArgs reverses EncodeStringArgs, pairing each FieldArgKey with
// the FieldArgValue that immediately follows it.
func DecodeStringArgs(payload []byte) (map[string]string, error) {
	fields, err := DecodeFields(payload)
	if err != nil {
		return nil, err
	}
	args := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, val := fields[i], fields[i+1]
		if err := MustType(key, TypeString); err != nil {
			return nil, err
		}
		if err := MustType(val, TypeString); err != nil {
			return nil, err
		}
		if key.ID != FieldArgKey || val.ID != FieldArgValue {
			continue
		}
		args[string(key.Value)] = string(val.Value)
	}
	return args, nil
}
