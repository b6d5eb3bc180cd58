package services

import (
	"errors"
	"log"
	"regexp"

	"stackit/internal/models"
	"stackit/internal/store"
)

// mentionPattern matches @username tokens in posted content. Usernames are
// word characters plus hyphens, 1-50 runes, same as the signup rules.
var mentionPattern = regexp.MustCompile(`@([\w-]{1,50})`)

// ExtractMentions returns the distinct usernames mentioned in content, in
// first-appearance order.
func ExtractMentions(content string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range mentionPattern.FindAllStringSubmatch(content, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// NotifyMentions fans a USER_MENTIONED notification out to every existing
// user referenced in content. Unknown usernames are skipped silently;
// self-mentions and duplicates are suppressed by the Notifier.
func (n *Notifier) NotifyMentions(content string, actorID, referenceID uint, referenceType string) {
	for _, username := range ExtractMentions(content) {
		user, err := n.store.GetUserByUsername(username)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Printf("mention lookup failed for %q: %v", username, err)
			continue
		}
		if _, err := n.Notify(models.NotificationUserMentioned, user.ID, actorID, referenceID, referenceType); err != nil {
			log.Printf("mention notification failed for %q: %v", username, err)
		}
	}
}
