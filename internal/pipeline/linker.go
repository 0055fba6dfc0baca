package pipeline

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pvgupta24/embark/internal/models"
)

const (
	// linkReferenceWidth is the width of a library placeholder in hex code
	linkReferenceWidth = 40

	// linkDetectWidth is how much of a placeholder solc keeps before cutting it
	linkDetectWidth = 38
)

// LinkReference returns the legacy placeholder of a library, before padding
func LinkReference(filename, className string) string {
	return "__" + filename + ":" + className
}

// HashedPlaceholder returns the placeholder solc 0.5+ emits for a library
func HashedPlaceholder(filename, className string) string {
	hash := crypto.Keccak256([]byte(filename + ":" + className))
	return "__$" + hex.EncodeToString(hash)[:34] + "$__"
}

// Link substitutes the address of every library referenced by code
// Libraries must already carry a deployed address; self is never linked
// against itself
func Link(code, self string, libraries []*models.Contract) (string, error) {
	for _, lib := range libraries {
		if lib == nil || lib.ClassName == self {
			continue
		}

		var err error
		code, err = linkLibrary(code, self, lib)
		if err != nil {
			return "", err
		}
	}

	if i := strings.Index(code, "__"); i >= 0 {
		end := i + linkReferenceWidth
		if end > len(code) {
			end = len(code)
		}
		return "", fmt.Errorf("%w: %s references an unknown library (%s)", ErrMissingLibraryAddress, self, code[i:end])
	}
	return code, nil
}

func linkLibrary(code, self string, lib *models.Contract) (string, error) {
	lowerCode := strings.ToLower(code)

	reference := LinkReference(lib.Filename, lib.ClassName)
	detect := reference
	if len(detect) > linkDetectWidth {
		detect = detect[:linkDetectWidth]
	}
	legacy := strings.Contains(lowerCode, strings.ToLower(detect))

	hashed := HashedPlaceholder(lib.Filename, lib.ClassName)
	modern := strings.Contains(lowerCode, hashed)

	if !legacy && !modern {
		return code, nil
	}

	if legacy && len(reference) > linkReferenceWidth {
		return "", fmt.Errorf("%w: %s is too long, try reducing the path of the contract (%s) and/or its name %s",
			ErrLinkReferenceTooLong, reference, lib.Filename, lib.ClassName)
	}

	if lib.DeployedAddress == "" {
		return "", fmt.Errorf("%w: %s needs %s but an address was not found, did you deploy it or configure an address?",
			ErrMissingLibraryAddress, self, lib.ClassName)
	}
	address := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(lib.DeployedAddress, "0x"), "0X"))

	if legacy {
		padded := reference + strings.Repeat("_", linkReferenceWidth-len(reference))
		code = replaceFold(code, padded, address)

		// solc cut the reference at linkDetectWidth and padded the rest
		if len(reference) > linkDetectWidth {
			re := regexp.MustCompile(fmt.Sprintf("(?i)%s.{%d}", regexp.QuoteMeta(detect), linkReferenceWidth-linkDetectWidth))
			code = re.ReplaceAllLiteralString(code, address)
		}
	}
	if modern {
		code = replaceFold(code, hashed, address)
	}
	return code, nil
}

// replaceFold replaces every case-insensitive occurrence of old in s
func replaceFold(s, old, replacement string) string {
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(old))
	return re.ReplaceAllLiteralString(s, replacement)
}
