package warden

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const permissionKeyPrefix = "warden.permissions."

// Auth implements logic to grant and check user permissions. Permissions are
// persisted via the Storage of the bot so they survive restarts.
type Auth struct {
	logger *zap.Logger
	store  *Storage
}

// NewAuth creates a new Auth instance.
func NewAuth(logger *zap.Logger, store *Storage) *Auth {
	return &Auth{
		logger: logger,
		store:  store,
	}
}

// CheckPermission checks if a user has permissions to access a resource under
// a given scope. If the user is not permitted access this function returns
// ErrNotAllowed.
//
// Scopes are interpreted in a hierarchical way where scope A includes scope B
// if A is a prefix to B. For example, a user who was granted the "mod" scope
// passes checks for "mod.purge" as well as "mod.blacklist", while a user who
// was only granted "mod.purge" does not pass the "mod.blacklist" check.
func (a *Auth) CheckPermission(scope, userID string) error {
	key := a.permissionsKey(userID)
	permissions, err := a.loadPermissions(key)
	if err != nil {
		return errors.WithStack(err)
	}

	a.logger.Debug("Checking user permissions",
		zap.String("requested_scope", scope),
		zap.String("user_id", userID),
	)

	for _, p := range permissions {
		if strings.HasPrefix(scope, p) {
			return nil
		}
	}

	return ErrNotAllowed
}

// Grant adds a permission scope to the given user. When a scope was granted
// to a specific user it can be checked later via CheckPermission(…). The
// returned boolean indicates whether the scope was actually added (i.e. true)
// or if the user already had the granted scope (false).
func (a *Auth) Grant(scope, userID string) (bool, error) {
	if scope == "" {
		return false, errors.New("scope cannot be empty")
	}

	key := a.permissionsKey(userID)
	oldPermissions, err := a.loadPermissions(key)
	if err != nil {
		return false, errors.WithStack(err)
	}

	newPermissions := make([]string, 0, len(oldPermissions)+1)
	for _, p := range oldPermissions {
		if strings.HasPrefix(scope, p) {
			// The user already has this or a broader scope so there is
			// nothing to do.
			return false, nil
		}

		if !strings.HasPrefix(p, scope) {
			// Keep all scopes that are not included in the new scope.
			newPermissions = append(newPermissions, p)
		}
	}

	a.logger.Info("Granting user permission",
		zap.String("scope", scope),
		zap.String("user_id", userID),
	)

	newPermissions = append(newPermissions, scope)
	err = a.updatePermissions(key, newPermissions)
	return true, err
}

// Revoke removes a previously granted scope from a user. If the user does not
// currently have the given scope this function returns false and no error.
// Scopes that are implied by a broader scope cannot be revoked individually;
// you have to revoke the broader scope instead.
func (a *Auth) Revoke(scope, userID string) (bool, error) {
	if scope == "" {
		return false, errors.New("scope cannot be empty")
	}

	key := a.permissionsKey(userID)
	oldPermissions, err := a.loadPermissions(key)
	if err != nil {
		return false, errors.WithStack(err)
	}

	if len(oldPermissions) == 0 {
		return false, nil
	}

	var revoked bool
	newPermissions := make([]string, 0, len(oldPermissions))
	for _, p := range oldPermissions {
		if p == scope {
			revoked = true
			continue
		}

		if strings.HasPrefix(scope, p) {
			return false, errors.Errorf("cannot revoke scope %q because the user still has the broader scope %q", scope, p)
		}

		newPermissions = append(newPermissions, p)
	}

	if !revoked {
		return false, nil
	}

	a.logger.Info("Revoking user permission",
		zap.String("scope", scope),
		zap.String("user_id", userID),
	)

	if len(newPermissions) == 0 {
		_, err := a.store.Delete(key)
		return true, errors.Wrap(err, "failed to delete last user permission")
	}

	err = a.updatePermissions(key, newPermissions)
	return true, err
}

func (a *Auth) loadPermissions(key string) ([]string, error) {
	var permissions []string
	ok, err := a.store.Get(key, &permissions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load user permissions")
	}

	if !ok {
		return nil, nil
	}

	return permissions, nil
}

func (a *Auth) updatePermissions(key string, permissions []string) error {
	err := a.store.Set(key, permissions)
	return errors.Wrap(err, "failed to update user permissions")
}

func (a *Auth) permissionsKey(userID string) string {
	return permissionKeyPrefix + userID
}
