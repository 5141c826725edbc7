package fs

import (
	"fmt"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
)

// Destination is any destination config struct read from the settings file.
type Destination interface {
	models.LocalDestination | models.S3Destination
}

// LoadDestination decodes the settings table under key into a destination
// and checks that its type matches want.
func LoadDestination[T Destination](key string, want string) (T, error) {
	var out T

	destMap := viper.GetStringMap(key)
	if len(destMap) == 0 {
		return out, fmt.Errorf("destination %s is not configured", key)
	}

	var dest models.BaseDestination
	rawDest, _ := jsoniter.Marshal(destMap)
	if err := jsoniter.Unmarshal(rawDest, &dest); err != nil {
		return out, fmt.Errorf("invalid destination %s: %v", key, err)
	}
	if dest.Type != want {
		return out, fmt.Errorf("invalid destination %s: unsupported protocol %s", key, dest.Type)
	}

	if err := jsoniter.Unmarshal(rawDest, &out); err != nil {
		return out, fmt.Errorf("invalid destination %s: %v", key, err)
	}
	return out, nil
}
