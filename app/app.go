package app

import (
	"database/sql"

	"github.com/go-chi/oauth"
	"github.com/opina-app/opina/config"
)

// App bundles the shared collaborators handlers need: the database pool, the
// staff bearer server and the parsed configuration.
type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config
}
