package config

const (
	EnvPrefix = "filedepot"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "FILEDEPOT_DB_DSN"
	EnvDBHost = "FILEDEPOT_DB_HOST"
	EnvDBUser = "FILEDEPOT_DB_USER"
	EnvDBName = "FILEDEPOT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
