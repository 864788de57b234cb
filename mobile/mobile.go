// Package mobile exposes the entry symbol invoked by the mobile host.
package mobile

import (
	"os"

	"yashubustudio/weatherdesk/internal/app"
)

// Start is called by the platform launcher instead of main. It never
// returns normally; the host process exits with the run's status.
func Start() {
	os.Exit(app.Main(os.Stderr))
}
