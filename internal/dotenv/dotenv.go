package dotenv

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Load reads .env from the working directory. A missing file is fine; the
// agent can be configured entirely through the environment.
func Load() error {
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}
