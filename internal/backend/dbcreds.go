package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

// DBCredentials are the site's database name and user, generated once at
// create time. They live next to the database so Configure can re-render
// wp-config.php after a migration without the orchestrator re-deriving
// them.
type DBCredentials struct {
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func credentialsPath(site *model.Site) string {
	return filepath.Join(DatabaseDir(site), "credentials.json")
}

// SaveDBCredentials persists the generated credentials for later
// re-configuration. No-op for sqlite sites.
func SaveDBCredentials(site *model.Site, creds DBCredentials) error {
	if site.Engine == model.EngineSQLite {
		return nil
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(credentialsPath(site), data, 0o600); err != nil {
		return fmt.Errorf("write db credentials: %w", err)
	}
	return nil
}

// LoadDBCredentials reads the credentials written at create time.
func LoadDBCredentials(site *model.Site) (DBCredentials, error) {
	var creds DBCredentials
	data, err := os.ReadFile(credentialsPath(site))
	if err != nil {
		return creds, fmt.Errorf("read db credentials: %w", err)
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("parse db credentials: %w", err)
	}
	return creds, nil
}
