package workspace

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/teamsync/internal/auth"
)

// Seed is the YAML document loaded at startup to populate a MemoryStore.
type Seed struct {
	Users []struct {
		ID                string    `yaml:"id"`
		Username          string    `yaml:"username"`
		Email             string    `yaml:"email"`
		PasswordChangedAt time.Time `yaml:"passwordChangedAt"`
	} `yaml:"users"`
	Projects []Project `yaml:"projects"`
	Tasks    []Task    `yaml:"tasks"`
}

// LoadSeedFile reads a seed document from path into store.
func LoadSeedFile(store *MemoryStore, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return LoadSeed(store, f)
}

// LoadSeed decodes a seed document and applies it in order: users, then
// projects, then tasks.
func LoadSeed(store *MemoryStore, r io.Reader) error {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return fmt.Errorf("decode seed: %w", err)
	}

	for _, u := range seed.Users {
		account := auth.Account{
			ID:                auth.Identity(u.ID),
			Username:          u.Username,
			Email:             u.Email,
			PasswordChangedAt: u.PasswordChangedAt,
		}
		if err := store.AddUser(account); err != nil {
			return fmt.Errorf("seed user %q: %w", u.ID, err)
		}
	}
	for _, p := range seed.Projects {
		if _, err := store.PutProject(p); err != nil {
			return fmt.Errorf("seed project %q: %w", p.ID, err)
		}
	}
	for _, t := range seed.Tasks {
		if _, err := store.PutTask(t); err != nil {
			return fmt.Errorf("seed task %q: %w", t.ID, err)
		}
	}
	return nil
}
