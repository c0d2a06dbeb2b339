package ircslack

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/sync/singleflight"
)

// Users wraps the user list with convenient operations and cache. Users
// are indexed both by Slack ID and by name, so event-path lookups never
// scan the whole map.
type Users struct {
	users      map[string]slack.User
	byName     map[string]string
	mu         sync.Mutex
	pagination int
	group      singleflight.Group
}

// NewUsers creates a new Users object.
func NewUsers(pagination int) *Users {
	return &Users{
		users:      make(map[string]slack.User),
		byName:     make(map[string]string),
		pagination: pagination,
	}
}

func (u *Users) insertLocked(user slack.User) {
	if old, ok := u.users[user.ID]; ok && old.Name != user.Name {
		delete(u.byName, old.Name)
	}
	u.users[user.ID] = user
	u.byName[user.Name] = user.ID
}

// Insert adds or replaces a single user in the cache. Used when the RTM
// stream announces a new or changed user.
func (u *Users) Insert(user slack.User) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.insertLocked(user)
}

// FetchByIDs fetches the users with the specified IDs and updates the internal
// user mapping.
func (u *Users) FetchByIDs(client *slack.Client, skipCache bool, userIDs ...string) ([]slack.User, error) {
	var (
		toRetrieve       []string
		alreadyRetrieved []slack.User
	)

	if !skipCache {
		u.mu.Lock()
		for _, uid := range userIDs {
			if u, ok := u.users[uid]; !ok {
				toRetrieve = append(toRetrieve, uid)
			} else {
				alreadyRetrieved = append(alreadyRetrieved, u)
			}
		}
		u.mu.Unlock()
		log.Debugf("Fetching information for %d users out of %d (%d already in cache)", len(toRetrieve), len(userIDs), len(userIDs)-len(toRetrieve))
	} else {
		toRetrieve = userIDs
	}
	chunkSize := 1000
	allFetchedUsers := make([]slack.User, 0, len(userIDs))
	for i := 0; i < len(toRetrieve); i += chunkSize {
		upperLimit := i + chunkSize
		if upperLimit > len(toRetrieve) {
			upperLimit = len(toRetrieve)
		}
		attempt := 0
		for {
			if attempt >= MaxSlackAPIAttempts {
				return nil, fmt.Errorf("Users.FetchByIDs: exceeded the maximum number of attempts (%d) with the Slack API", MaxSlackAPIAttempts)
			}
			log.Debugf("Fetching %d users of %d, attempt %d of %d", len(toRetrieve), len(userIDs), attempt+1, MaxSlackAPIAttempts)
			slackUsers, err := client.GetUsersInfo(toRetrieve[i:upperLimit]...)
			if err != nil {
				if rlErr, ok := err.(*slack.RateLimitedError); ok {
					// we were rate-limited. Let's wait the recommended delay
					log.Warningf("Hit Slack API rate limiter. Waiting %v", rlErr.RetryAfter)
					time.Sleep(rlErr.RetryAfter)
					attempt++
					continue
				}
				return nil, err
			}
			if len(*slackUsers) != len(toRetrieve[i:upperLimit]) {
				log.Warningf("Tried to fetch %d users but only got %d", len(toRetrieve[i:upperLimit]), len(*slackUsers))
			}
			allFetchedUsers = append(allFetchedUsers, *slackUsers...)
			u.mu.Lock()
			for _, user := range *slackUsers {
				u.insertLocked(user)
			}
			u.mu.Unlock()
			break
		}
	}
	allUsers := append(alreadyRetrieved, allFetchedUsers...)
	if len(userIDs) != len(allUsers) {
		return allFetchedUsers, fmt.Errorf("Found %d users but %d were requested", len(allUsers), len(userIDs))
	}
	return allUsers, nil
}

// Refresh fetches one user by ID, deduplicating concurrent lookups of the
// same ID. Event handling can hit the same unknown sender many times in a
// burst; only one users.info call goes out.
func (u *Users) Refresh(client *slack.Client, userID string) (*slack.User, error) {
	v, err, _ := u.group.Do(userID, func() (interface{}, error) {
		users, err := u.FetchByIDs(client, true, userID)
		if err != nil {
			return nil, err
		}
		if len(users) == 0 {
			return nil, fmt.Errorf("no such user: %s", userID)
		}
		return &users[0], nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*slack.User), nil
}

// Fetch retrieves all the users on a given Slack team. The Slack client has to
// be valid and connected.
func (u *Users) Fetch(client *slack.Client) ([]slack.User, error) {
	log.Infof("Fetching all users, might take a while on large Slack teams")
	var opts []slack.GetUsersOption
	if u.pagination > 0 {
		log.Debugf("Setting user pagination to %d", u.pagination)
		opts = append(opts, slack.GetUsersOptionLimit(u.pagination))
	}
	up := client.GetUsersPaginated(opts...)
	var (
		err   error
		ctx   = context.Background()
		users = make(map[string]slack.User)
	)
	start := time.Now()
	var allFetchedUsers []slack.User
	for err == nil {
		up, err = up.Next(ctx)
		if err == nil {
			log.Debugf("Retrieved %d users (current total is %d)", len(up.Users), len(users))
			for _, u := range up.Users {
				users[u.ID] = u
			}
			allFetchedUsers = append(allFetchedUsers, up.Users...)
		} else if rateLimitedError, ok := err.(*slack.RateLimitedError); ok {
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-time.After(rateLimitedError.RetryAfter):
				err = nil
			}
		}
	}
	log.Infof("Retrieved %d users in %s", len(users), time.Since(start))
	err = up.Failure(err)
	if err != nil {
		log.Warningf("Failed to get users: %v", err)
	}
	u.mu.Lock()
	u.users = users
	u.byName = make(map[string]string, len(users))
	for _, user := range users {
		u.byName[user.Name] = user.ID
	}
	u.mu.Unlock()
	return allFetchedUsers, nil
}

// Count returns the number of users. This method must be called after `Fetch`.
func (u *Users) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.users)
}

// ByID retrieves a user by its Slack ID.
func (u *Users) ByID(id string) *slack.User {
	u.mu.Lock()
	defer u.mu.Unlock()
	if user, ok := u.users[id]; ok {
		return &user
	}
	return nil
}

// ByName retrieves a user by its Slack name.
func (u *Users) ByName(name string) *slack.User {
	u.mu.Lock()
	defer u.mu.Unlock()
	if id, ok := u.byName[name]; ok {
		user := u.users[id]
		return &user
	}
	return nil
}

// IDsToNames returns a list of user names from the given IDs. The
// returned list could be shorter if there are invalid user IDs.
// Warning: this method is probably only useful for NAMES commands
// where a non-exact mapping is acceptable.
func (u *Users) IDsToNames(userIDs ...string) []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	names := make([]string, 0)
	for _, uid := range userIDs {
		if u, ok := u.users[uid]; ok {
			names = append(names, u.Name)
		} else {
			log.Warningf("IDsToNames: unknown user ID %s", uid)
		}
	}
	return names
}
