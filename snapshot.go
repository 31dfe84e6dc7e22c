package structwire

import (
	"github.com/andreyvit/structwire/meta"
	"github.com/andreyvit/structwire/persist"
)

// SaveSnapshot encodes goValue and saves it as the next generation of pf.
// The encoded blocks are streamed to the file without being joined.
func SaveSnapshot(pf *persist.File, reg *meta.Registry, format Format, typeName string, goValue any) error {
	var zb ZeroCopyBuffer
	defer zb.Reset()
	if err := appendMarshaled(&zb, reg, format, typeName, goValue); err != nil {
		return err
	}
	return pf.WriteFrom(&zb)
}

// LoadSnapshot decodes the newest valid generation of pf into goPtr.
func LoadSnapshot(pf *persist.File, reg *meta.Registry, format Format, typeName string, goPtr any) error {
	data, err := pf.Read()
	if err != nil {
		return err
	}
	return Unmarshal(reg, format, data, typeName, goPtr)
}
