// Package database owns the sqlite file holding users and share links. The
// job records live in the same file but are managed by jobs.SQLiteStore.
package database

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/argon2"

	"site-timelapse/pkg/config"
	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/models"
)

// argon2Params holds the parameters for the Argon2id hashing algorithm.
type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

var params = &argon2Params{
	memory:      64 * 1024,
	iterations:  3,
	parallelism: 4,
	saltLength:  16,
	keyLength:   32,
}

// AdminUsername is the account bootstrapped from ADMIN_PASSWORD.
const AdminUsername = "admin"

var db *sql.DB

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"username" TEXT NOT NULL UNIQUE,
		"password_hash" TEXT NOT NULL,
		"is_admin" INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS shared_links (
		"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"token" TEXT NOT NULL UNIQUE,
		"job_id" TEXT NOT NULL,
		"file_path" TEXT NOT NULL,
		"expires_at" DATETIME NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS shared_links_job_idx ON shared_links (job_id);`,
}

// InitDB opens <DataDir>/lapse.db and creates the users and shared_links
// tables if they don't exist.
func InitDB() error {
	dbPath := filepath.Join(config.AppConfig.DataDir, "lapse.db")
	return Open(dbPath + "?_busy_timeout=5000&_journal_mode=WAL")
}

// Open is InitDB for an explicit sqlite DSN.
func Open(dsn string) error {
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		// Every connection to :memory: is a different database.
		conn.SetMaxOpenConns(1)
	}
	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	db = conn
	log.Info().Str("dsn", dsn).Msg("Database initialized")
	return nil
}

// GetDB returns the database connection pool.
func GetDB() *sql.DB {
	return db
}

// HashPassword generates an Argon2id hash of the password.
// The format is: $argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, params.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, params.iterations, params.memory, params.parallelism, params.keyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.memory, params.iterations, params.parallelism, b64Salt, b64Hash), nil
}

// CheckPasswordHash compares a password with an Argon2id hash.
func CheckPasswordHash(password, hash string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		log.Warn().Msg("Invalid hash format")
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		log.Warn().Str("field", parts[2]).Msg("Incompatible Argon2 version")
		return false
	}

	p := &argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		log.Warn().Err(err).Msg("Failed to parse Argon2 params")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.Warn().Err(err).Msg("Failed to decode salt")
		return false
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.Warn().Err(err).Msg("Failed to decode hash")
		return false
	}

	comparisonHash := argon2.IDKey([]byte(password), salt, p.iterations, p.memory, p.parallelism, uint32(len(decodedHash)))
	return subtle.ConstantTimeCompare(decodedHash, comparisonHash) == 1
}

// UserExists checks if a user exists in the database.
func UserExists(username string) (bool, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateUser creates a new user. An existing username is a validation error.
func CreateUser(username, password string, isAdmin bool) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return errs.Validation("username and password are required")
	}
	exists, err := UserExists(username)
	if err != nil {
		return fmt.Errorf("failed to check if user exists: %w", err)
	}
	if exists {
		return errs.Validation("user '%s' already exists", username)
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if _, err := db.Exec("INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, ?)", username, passwordHash, isAdmin); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("user", username).Bool("admin", isAdmin).Msg("✅ User created")
	return nil
}

// EnsureAdmin creates the admin account on first boot.
func EnsureAdmin(password string) error {
	exists, err := UserExists(AdminUsername)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if password == "" {
		return errs.Validation("ADMIN_PASSWORD must be set to create the initial admin user")
	}
	return CreateUser(AdminUsername, password, true)
}

// CheckUserCredentials verifies a user's credentials and returns the user object on success.
func CheckUserCredentials(username, password string) (*models.User, bool) {
	var (
		user    models.User
		isAdmin int
		hash    string
	)
	err := db.QueryRow("SELECT id, username, is_admin, password_hash FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &isAdmin, &hash)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Error().Err(err).Str("user", username).Msg("Error retrieving user")
		}
		return nil, false
	}
	if !CheckPasswordHash(password, hash) {
		return nil, false
	}
	user.IsAdmin = isAdmin == 1
	return &user, true
}

// GetUserByUsername returns nil, nil when the user does not exist.
func GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	var isAdminInt int
	err := db.QueryRow("SELECT id, username, is_admin FROM users WHERE username = ?", username).Scan(&user.ID, &user.Username, &isAdminInt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	user.IsAdmin = isAdminInt == 1
	return &user, nil
}

// GetAllUsers retrieves all users ordered by name.
func GetAllUsers() ([]models.User, error) {
	rows, err := db.Query("SELECT id, username, is_admin FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		var isAdminInt int
		if err := rows.Scan(&user.ID, &user.Username, &isAdminInt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		user.IsAdmin = isAdminInt == 1
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during user rows iteration: %w", err)
	}
	return users, nil
}

func affectedOne(result sql.Result, username string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return errs.NotFound("user '%s' not found", username)
	}
	return nil
}

// DeleteUser deletes a user from the database.
func DeleteUser(username string) error {
	result, err := db.Exec("DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := affectedOne(result, username); err != nil {
		return err
	}
	log.Info().Str("user", username).Msg("User deleted")
	return nil
}

// UpdateUserPassword updates a user's password in the database.
func UpdateUserPassword(username, newPassword string) error {
	if newPassword == "" {
		return errs.Validation("password is required")
	}
	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}
	result, err := db.Exec("UPDATE users SET password_hash = ? WHERE username = ?", passwordHash, username)
	if err != nil {
		return fmt.Errorf("failed to update password for user '%s': %w", username, err)
	}
	if err := affectedOne(result, username); err != nil {
		return err
	}
	log.Info().Str("user", username).Msg("Password updated")
	return nil
}

// CreateShareLink stores a link to the artifact of jobID and returns its
// token. A zero duration means the link never expires.
func CreateShareLink(jobID, filePath string, duration time.Duration) (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	hash := sha256.Sum256(randomBytes)
	token := hex.EncodeToString(hash[:])

	expiresAt := time.Now().AddDate(100, 0, 0)
	if duration > 0 {
		expiresAt = time.Now().Add(duration)
	}

	if _, err := db.Exec("INSERT INTO shared_links (token, job_id, file_path, expires_at) VALUES (?, ?, ?, ?)",
		token, jobID, filePath, expiresAt.UTC()); err != nil {
		return "", fmt.Errorf("failed to create share link: %w", err)
	}
	return token, nil
}

// GetSharedFilePath resolves a token. Unknown and expired tokens are
// ErrNotFound.
func GetSharedFilePath(token string) (string, error) {
	var filePath string
	var expiresAt time.Time
	err := db.QueryRow("SELECT file_path, expires_at FROM shared_links WHERE token = ?", token).Scan(&filePath, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errs.NotFound("share link not found")
		}
		return "", fmt.Errorf("failed to get shared file path: %w", err)
	}
	if time.Now().After(expiresAt) {
		return "", errs.NotFound("share link expired")
	}
	return filePath, nil
}

// DeleteShareLinksForJob drops every link pointing at jobID.
func DeleteShareLinksForJob(jobID string) error {
	if _, err := db.Exec("DELETE FROM shared_links WHERE job_id = ?", jobID); err != nil {
		return fmt.Errorf("failed to delete share links of job %s: %w", jobID, err)
	}
	return nil
}

// DeleteExpiredShareLinks deletes all expired share links and returns how
// many were removed.
func DeleteExpiredShareLinks() (int64, error) {
	result, err := db.Exec("DELETE FROM shared_links WHERE expires_at < ?", time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired share links: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("Deleted expired share links")
	}
	return n, nil
}
