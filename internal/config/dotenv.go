package config

import "github.com/joho/godotenv"

// LoadDotEnv reads a .env file into the process environment.
// Variables that are already set win over the file.
func LoadDotEnv(path string) error {
	return godotenv.Load(path)
}
