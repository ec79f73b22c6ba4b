package eventlog

import (
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// EncodeDetails writes the detail map as a JSON object with sorted keys so
// stored rows are stable.
func EncodeDetails(m map[string]string) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	for _, k := range slices.Sorted(maps.Keys(m)) {
		e.FieldStart(k)
		e.Str(m[k])
	}
	e.ObjEnd()
	return slices.Clone(e.Bytes())
}

func DecodeDetails(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out := map[string]string{}
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		v, err := d.Str()
		if err != nil {
			return errors.Wrapf(err, "detail %q", key)
		}
		out[key] = v
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode event details")
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
