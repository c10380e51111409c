package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// MemorySeed is the household fixture loaded when the memory store driver runs.
type MemorySeed struct {
	Homes  []SeedHome  `mapstructure:"homes"`
	Chores []SeedChore `mapstructure:"chores"`
}

type SeedHome struct {
	ID      string   `mapstructure:"id"`
	Members []string `mapstructure:"members"`
}

type SeedChore struct {
	ID        string `mapstructure:"id"`
	HomeID    string `mapstructure:"homeId"`
	Title     string `mapstructure:"title"`
	Status    string `mapstructure:"status"`
	ClaimedBy string `mapstructure:"claimedBy"`
	Points    int    `mapstructure:"points"`
}

// LoadMemorySeed reads a YAML or JSON seed file. The extension picks the format.
func LoadMemorySeed(path string) (*MemorySeed, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read memory seed %s: %w", path, err)
	}

	var seed MemorySeed
	if err := v.Unmarshal(&seed); err != nil {
		return nil, fmt.Errorf("decode memory seed %s: %w", path, err)
	}
	return &seed, nil
}
