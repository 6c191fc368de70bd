package main

import (
	"context"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/user"
)

// lookupUser returns the user owning uname or email, or user.ErrNotFound.
func (cli *commandLine) lookupUser(ctx context.Context, uname, email string) (user.User, error) {
	for _, key := range []string{uname, email} {
		if key == "" {
			continue
		}
		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: key})
		if err == nil {
			return usr, nil
		}
		if errors.Cause(err) != user.ErrNotFound {
			return user.User{}, err
		}
	}
	return user.User{}, user.ErrNotFound
}

// addUser updates or creates an active user.User. Admins get all the roles, other users are teachers.
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	name = core.CleanString(name)
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.lookupUser(ctx, uname, email)
	created := false
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		usr = user.User{CreatedAt: now}
		created = true
	}
	if uname != "" {
		usr.Username = uname
	}
	if email != "" {
		usr.Email = email
	}
	if name != "" {
		usr.Name = name
	} else if usr.Name == "" {
		usr.Name = usr.Username
	}
	if isAdmin {
		usr.Roles = append([]string(nil), user.AllRoles...)
	} else if len(usr.Roles) == 0 {
		usr.Roles = append([]string(nil), user.TeacherRoles...)
	}
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if usr, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}

	action := "updated"
	if created {
		action = "created"
	}
	_, _ = color.New(color.FgGreen).Fprintf(cli.out, "user %s %s (%s)\n", usr.Username, action, usr.ID)
	return nil
}
