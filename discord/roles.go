package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MinnDevelopment/strumbot/cache"
)

const roleCacheSize = 32

type roleLister interface {
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
}

// Roles resolves configured role names to mention tokens in one guild.
type Roles struct {
	api     roleLister
	guildID string
	ids     *cache.Bounded[string, string]
}

// NewRoles resolves against guildID through api, usually a *discordgo.Session.
func NewRoles(api roleLister, guildID string) *Roles {
	return &Roles{api: api, guildID: guildID, ids: cache.New[string, string](roleCacheSize)}
}

// Mention returns the mention token for the role called name (case-insensitive).
// An empty name disables the mention. "everyone" and "here" map to the
// built-in mentions.
func (r *Roles) Mention(ctx context.Context, name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "":
		return "", nil
	case "everyone", "@everyone":
		return "@everyone", nil
	case "here", "@here":
		return "@here", nil
	}
	if id, ok := r.ids.Get(key); ok {
		return roleMention(id), nil
	}

	roles, err := r.api.GuildRoles(r.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("list roles of guild %s: %w", r.guildID, err)
	}
	var found string
	for _, role := range roles {
		k := strings.ToLower(role.Name)
		if k == key && found == "" {
			found = role.ID
			r.ids.Put(k, role.ID)
		}
	}
	if found == "" {
		return "", fmt.Errorf("role %q not found in guild %s", name, r.guildID)
	}
	return roleMention(found), nil
}

func roleMention(id string) string { return "<@&" + id + ">" }
