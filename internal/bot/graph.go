package bot

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shaiso/fooroh/internal/social"
)

// Set — множество DID.
type Set map[string]struct{}

// NewSet создаёт множество из списка.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// ActorSet создаёт множество DID учётных записей.
func ActorSet(actors []social.Actor) Set {
	s := make(Set, len(actors))
	for _, a := range actors {
		s[a.DID] = struct{}{}
	}
	return s
}

// Has проверяет принадлежность.
func (s Set) Has(did string) bool {
	_, ok := s[did]
	return ok
}

// Union возвращает s ∪ others.
func (s Set) Union(others ...Set) Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	for _, o := range others {
		for k := range o {
			out[k] = struct{}{}
		}
	}
	return out
}

// Difference возвращает s без элементов others.
func (s Set) Difference(others ...Set) Set {
	out := make(Set, len(s))
	for k := range s {
		drop := false
		for _, o := range others {
			if o.Has(k) {
				drop = true
				break
			}
		}
		if !drop {
			out[k] = struct{}{}
		}
	}
	return out
}

// Sorted возвращает элементы по возрастанию.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Graph — снимок графа подписок бота.
type Graph struct {
	Follows   Set
	Followers Set
	Ignores   Set
	Whitelist Set
}

// Discover возвращает отписавшихся (бот подписан, они нет) и новых
// подписчиков (они подписаны, бот нет).
//
// Непустой whitelist переводит в ignore всех, кто не в whitelist.
func (g Graph) Discover() (unfollowers, newFollowers []string) {
	ignores := g.Ignores
	if len(g.Whitelist) > 0 {
		ignores = ignores.Union(g.Follows, g.Followers).Difference(g.Whitelist)
	}
	unfollowers = g.Follows.Difference(ignores, g.Followers).Sorted()
	newFollowers = g.Followers.Difference(ignores, g.Follows).Sorted()
	return unfollowers, newFollowers
}

// Tracked возвращает учётные записи, чьи посты обрабатывает бот:
// whitelist, если он задан, иначе подписки без ignore.
func (g Graph) Tracked() Set {
	if len(g.Whitelist) > 0 {
		return g.Whitelist.Union()
	}
	return g.Follows.Difference(g.Ignores)
}

// ListMembers читает участников списка. Пустая ссылка и ошибки дают
// пустое множество.
func ListMembers(ctx context.Context, client social.Client, listURI string, logger *slog.Logger) Set {
	if listURI == "" {
		return Set{}
	}
	members, err := client.ListMembers(ctx, listURI)
	if err != nil {
		logger.Warn("failed to get list members", "list", listURI, "error", err)
		return Set{}
	}
	return NewSet(members...)
}
