package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvgupta24/embark/internal/models"
)

const libAddress = "0x00000000000000000000000000000000000000a1"

func padReference(reference string) string {
	return reference + strings.Repeat("_", linkReferenceWidth-len(reference))
}

func TestLink(t *testing.T) {
	lib := &models.Contract{ClassName: "Lib", Filename: "lib.sol", DeployedAddress: libAddress}
	hex := strings.TrimPrefix(libAddress, "0x")

	tests := []struct {
		name    string
		code    string
		libs    []*models.Contract
		want    string
		wantErr error
	}{
		{
			name: "no references",
			code: "6001",
			libs: []*models.Contract{lib},
			want: "6001",
		},
		{
			name: "legacy placeholder",
			code: "73" + padReference("__lib.sol:Lib") + "6000",
			libs: []*models.Contract{lib},
			want: "73" + hex + "6000",
		},
		{
			name: "legacy placeholder in another case",
			code: "73" + padReference("__LIB.SOL:LIB") + "73" + padReference("__lib.sol:Lib"),
			libs: []*models.Contract{lib},
			want: "73" + hex + "73" + hex,
		},
		{
			name: "hashed placeholder",
			code: "73" + HashedPlaceholder("lib.sol", "Lib") + "6000",
			libs: []*models.Contract{lib},
			want: "73" + hex + "6000",
		},
		{
			name:    "library without address",
			code:    "73" + padReference("__lib.sol:Lib"),
			libs:    []*models.Contract{{ClassName: "Lib", Filename: "lib.sol"}},
			wantErr: ErrMissingLibraryAddress,
		},
		{
			name:    "unknown library",
			code:    "73" + padReference("__other.sol:Other"),
			libs:    []*models.Contract{lib},
			wantErr: ErrMissingLibraryAddress,
		},
		{
			name: "reference too long",
			code: "73" + LinkReference("contracts/very/deep/path/lib.sol", "LibraryWithALongName")[:linkDetectWidth] + "__",
			libs: []*models.Contract{{
				ClassName:       "LibraryWithALongName",
				Filename:        "contracts/very/deep/path/lib.sol",
				DeployedAddress: libAddress,
			}},
			wantErr: ErrLinkReferenceTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Link(tt.code, "Main", tt.libs)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLink_TruncatedReference(t *testing.T) {
	// 39 characters: solc keeps the first 38 and pads to 40
	filename := "contracts/libraries/math_lib.sol"
	lib := &models.Contract{ClassName: "Math", Filename: filename, DeployedAddress: libAddress}
	reference := LinkReference(filename, "Math")
	require.Len(t, reference, 39)

	code := "73" + reference[:linkDetectWidth] + "__" + "6000"
	got, err := Link(code, "Main", []*models.Contract{lib})
	require.NoError(t, err)
	assert.Equal(t, "73"+strings.TrimPrefix(libAddress, "0x")+"6000", got)
}

func TestLink_SkipsSelf(t *testing.T) {
	self := &models.Contract{ClassName: "Main", Filename: "main.sol", DeployedAddress: libAddress}
	code := "73" + padReference("__main.sol:Main")

	_, err := Link(code, "Main", []*models.Contract{self})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingLibraryAddress))
}

func TestHashedPlaceholder(t *testing.T) {
	p := HashedPlaceholder("lib.sol", "Lib")
	assert.Len(t, p, linkReferenceWidth)
	assert.True(t, strings.HasPrefix(p, "__$"))
	assert.True(t, strings.HasSuffix(p, "$__"))
}
