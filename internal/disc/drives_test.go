package disc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLSBLKDrives(t *testing.T) {
	output := `NAME="sda" PATH="/dev/sda" TYPE="disk" VENDOR="ATA     " MODEL="Samsung SSD"
NAME="sr0" PATH="/dev/sr0" TYPE="rom" VENDOR="HL-DT-ST" MODEL="DVDRAM GP65NB60"
NAME="sr1" PATH="" TYPE="rom" VENDOR="" MODEL=""
`
	drives := ParseLSBLKDrives(output)
	assert.Equal(t, []DriveInfo{
		{Name: "sr0", Path: "/dev/sr0", Vendor: "HL-DT-ST", Model: "DVDRAM GP65NB60"},
		{Name: "sr1", Path: "/dev/sr1"},
	}, drives)
}

func TestParseLSBLKKeyValueLine(t *testing.T) {
	got := parseLSBLKKeyValueLine(`NAME="sr0" MODEL="BD RE  WH16NS40" TYPE=rom`)
	assert.Equal(t, map[string]string{"NAME": "sr0", "MODEL": "BD RE  WH16NS40", "TYPE": "rom"}, got)
}
