package iso9660

import (
	"encoding/hex"
	"strconv"
	"time"
)

// DescriptorField pairs a display name with an accessor.
type DescriptorField struct {
	Name  string
	Value func(VolumeDescriptor) string
}

// FieldValue is an evaluated DescriptorField.
type FieldValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DescriptorFields lists every displayed descriptor field in presentation order.
var DescriptorFields = []DescriptorField{
	{"Version", func(v VolumeDescriptor) string { return strconv.Itoa(v.Version) }},
	{"File Structure Version", func(v VolumeDescriptor) string { return strconv.Itoa(v.FileStructureVersion) }},
	{"Flags", func(v VolumeDescriptor) string { return strconv.Itoa(v.Flags) }},
	{"Sector Size", func(v VolumeDescriptor) string { return strconv.Itoa(v.SectorSize) }},
	{"Sector Count", func(v VolumeDescriptor) string { return strconv.Itoa(v.SectorCount) }},
	{"Size", func(v VolumeDescriptor) string {
		size, err := v.ByteSize()
		if err != nil {
			return "overflow"
		}
		return strconv.Itoa(size)
	}},
	{"System Identifier", func(v VolumeDescriptor) string { return v.SystemID }},
	{"Volume Identifier", func(v VolumeDescriptor) string { return v.VolumeID }},
	{"Volume Set Identifier", func(v VolumeDescriptor) string { return v.VolumeSetID }},
	{"Publisher Identifier", func(v VolumeDescriptor) string { return v.PublisherID }},
	{"Data Preparer Identifier", func(v VolumeDescriptor) string { return v.PreparerID }},
	{"Application Identifier", func(v VolumeDescriptor) string { return v.ApplicationID }},
	{"Copyright File Identifier", func(v VolumeDescriptor) string { return v.CopyrightFileID }},
	{"Abstract File Identifier", func(v VolumeDescriptor) string { return v.AbstractFileID }},
	{"Bibliographic File Identifier", func(v VolumeDescriptor) string { return v.BibliographicFileID }},
	{"Creation Date", func(v VolumeDescriptor) string { return formatDate(v.Created) }},
	{"Modification Date", func(v VolumeDescriptor) string { return formatDate(v.Modified) }},
	{"Expiration Date", func(v VolumeDescriptor) string { return formatDate(v.Expires) }},
	{"Effective Date", func(v VolumeDescriptor) string { return formatDate(v.Effective) }},
	{"Escape Sequences", func(v VolumeDescriptor) string { return hexOrEmpty(v.EscapeSequences[:]) }},
	{"Volume Set Size", func(v VolumeDescriptor) string { return strconv.Itoa(v.VolumeSetSize) }},
	{"Volume Sequence Number", func(v VolumeDescriptor) string { return strconv.Itoa(v.VolumeSequenceNumber) }},
	{"Path Table Size", func(v VolumeDescriptor) string { return strconv.Itoa(v.PathTableSize) }},
	{"Path Table Location (L)", func(v VolumeDescriptor) string { return strconv.FormatUint(uint64(v.PathTableL), 10) }},
	{"Optional Path Table Location (L)", func(v VolumeDescriptor) string {
		return strconv.FormatUint(uint64(v.OptionalPathTableL), 10)
	}},
	{"Path Table Location (M)", func(v VolumeDescriptor) string { return strconv.FormatUint(uint64(v.PathTableM), 10) }},
	{"Optional Path Table Location (M)", func(v VolumeDescriptor) string {
		return strconv.FormatUint(uint64(v.OptionalPathTableM), 10)
	}},
	{"Application Use", func(v VolumeDescriptor) string { return hexOrEmpty(v.ApplicationUse[:]) }},
}

// Fields evaluates DescriptorFields against v.
func (v VolumeDescriptor) Fields() []FieldValue {
	out := make([]FieldValue, 0, len(DescriptorFields))
	for _, field := range DescriptorFields {
		out = append(out, FieldValue{Name: field.Name, Value: field.Value(v)})
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05.00 -07:00")
}

// hexOrEmpty renders the bytes up to the last non-zero one.
func hexOrEmpty(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	if end == 0 {
		return ""
	}
	return hex.EncodeToString(b[:end])
}
