package crud

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"wtfGram/domain"
	"wtfGram/errs"
)

// UserService manages Users. It also contains the part of the authentication system
// that checks credentials and hands out session tokens. The http layer deals with
// reading them from requests. It implements the domain.UserService interface.
type UserService struct {
	userValidator
}

// userValidator runs validations on incoming User data.
// On success, it passes the data on to userStore.
// Otherwise, it returns the error of the validation that has failed.
type userValidator struct {
	pepper     string
	emailRegex *regexp.Regexp
	tokens     domain.IdentityVerifier
	userStore
}

// userStore runs CRUD operations on the store using incoming User data.
// It assumes that data has been validated.
type userStore struct {
	store domain.Store
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewUserService returns an instance of UserService.
func NewUserService(store domain.Store, tokens domain.IdentityVerifier, pepper string, log logrus.FieldLogger) *UserService {
	return &UserService{
		userValidator{
			pepper:     pepper,
			emailRegex: regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,16}$`),
			tokens:     tokens,
			userStore: userStore{
				store: store,
				log:   log,
				now:   time.Now,
			},
		},
	}
}

// Ensure the UserService struct properly implements the domain.UserService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.UserService = &UserService{}

// Register creates a new account and signs it in.
func (uv *userValidator) Register(ctx context.Context, input domain.RegisterInput) (*domain.Session, error) {
	if input.Password != input.ConfirmPassword {
		return nil, errs.Errorf(errs.EINVALID, "The passwords do not match.")
	}
	user := &domain.User{
		Handle:   input.Handle,
		Email:    input.Email,
		Password: input.Password,
	}
	err := runUserValFns(ctx, user,
		uv.handleNormalize,
		uv.handleRequired,
		uv.emailNormalize,
		uv.emailRequired,
		uv.emailFormat,
		uv.passwordRequired,
		uv.passwordMinLength,
		uv.handleIsAvail,
		uv.emailIsAvail,
		uv.passwordBcrypt,
		uv.passwordHashRequired)
	if err != nil {
		return nil, err
	}
	if err := uv.userStore.create(ctx, user); err != nil {
		return nil, err
	}
	return uv.signIn(user)
}

// Login checks a submitted user name or email address and password for existence and correctness.
func (uv *userValidator) Login(ctx context.Context, handleOrEmail, password string) (*domain.Session, error) {
	handleOrEmail = strings.TrimSpace(handleOrEmail)
	if handleOrEmail == "" || password == "" {
		return nil, errs.Errorf(errs.EINVALID, "User name or email and password are required.")
	}

	// Look for a user record containing the submitted email address or user name.
	filter := domain.UserFilter{Limit: 1}
	if lower := strings.ToLower(handleOrEmail); uv.emailRegex.MatchString(lower) {
		filter.Email = &lower
	} else {
		filter.Handle = &handleOrEmail
	}
	found, err := uv.store.FindUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errs.Errorf(errs.ENOTFOUND, "No user with that user name or email address exists.")
	}
	user := found[0]

	// Append a predefined pepper to the submitted password, hash it, and compare the result to the
	// password hash stored in the user's record. If they match, the submitted password is correct.
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password+uv.pepper))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, errs.Errorf(errs.EUNAUTHENTICATED, "The password is incorrect.")
		}
		return nil, err
	}
	return uv.signIn(user)
}

// signIn issues a session token for user.
func (uv *userValidator) signIn(user *domain.User) (*domain.Session, error) {
	token, err := uv.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &domain.Session{User: user, Token: token}, nil
}

// ByID retrieves a User by its ID.
func (us *userStore) ByID(ctx context.Context, id string) (*domain.User, error) {
	if domain.CanonicalID(id) == "" {
		return nil, errs.Errorf(errs.EINVALID, "A user id is required.")
	}
	return us.store.UserByID(ctx, id)
}

// All retrieves every User, newest first.
func (us *userStore) All(ctx context.Context) ([]*domain.User, error) {
	return us.store.FindUsers(ctx, domain.UserFilter{})
}

// Search retrieves the Users whose user name contains keyword, ignoring case.
func (us *userStore) Search(ctx context.Context, keyword string) ([]*domain.User, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errs.Errorf(errs.EINVALID, "A search term is required.")
	}
	return us.store.FindUsers(ctx, domain.UserFilter{Keyword: &keyword})
}

// Following retrieves the Users the caller follows, most recently followed first.
func (us *userStore) Following(ctx context.Context, identity *domain.Identity) ([]*domain.User, error) {
	if identity == nil {
		return nil, errs.Errorf(errs.EUNAUTHENTICATED, "You must be signed in.")
	}
	user, err := us.store.UserByID(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	followed, err := us.store.FindUsers(ctx, domain.UserFilter{IDs: user.Followings})
	if err != nil {
		return nil, err
	}
	rank := make(map[string]int, len(user.Followings))
	for i, id := range user.Followings {
		rank[domain.CanonicalID(id)] = i
	}
	sort.SliceStable(followed, func(i, j int) bool {
		return rank[domain.CanonicalID(followed[i].ID)] < rank[domain.CanonicalID(followed[j].ID)]
	})
	return followed, nil
}

// create stores the data from the User object in a new record.
func (us *userStore) create(ctx context.Context, user *domain.User) error {
	user.ID = uuid.NewString()
	user.CreatedAt = us.now().UTC()
	user.Followers = []string{}
	user.Followings = []string{}
	if err := us.store.CreateUser(ctx, user); err != nil {
		return err
	}
	us.log.WithFields(logrus.Fields{"user": user.ID, "userName": user.Handle}).Info("registered user")
	return nil
}

// runUserValFns runs any number of functions of type userValFn on the passed in User object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runUserValFns(ctx context.Context, user *domain.User, fns ...userValFn) error {
	for _, fn := range fns {
		if err := fn(ctx, user); err != nil {
			return err
		}
	}
	return nil
}

// A userValFn is any function that takes in a pointer to a domain.User object and returns an error.
type userValFn func(ctx context.Context, user *domain.User) error

// handleNormalize trims the user name. User names stay case sensitive.
func (uv *userValidator) handleNormalize(ctx context.Context, user *domain.User) error {
	user.Handle = strings.TrimSpace(user.Handle)
	return nil
}

// handleRequired makes sure that the user name is not the empty string.
func (uv *userValidator) handleRequired(ctx context.Context, user *domain.User) error {
	if user.Handle == "" {
		return errs.Errorf(errs.EINVALID, "A user name is required.")
	}
	return nil
}

// handleIsAvail makes sure that a provided user name is not yet taken.
func (uv *userValidator) handleIsAvail(ctx context.Context, user *domain.User) error {
	existing, err := uv.store.FindUsers(ctx, domain.UserFilter{Handle: &user.Handle, Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 && !domain.SameID(existing[0].ID, user.ID) {
		return errs.Errorf(errs.ECONFLICT, "This user name is already taken.")
	}
	return nil
}

// emailFormat makes sure that a provided email address is well formed.
func (uv *userValidator) emailFormat(ctx context.Context, user *domain.User) error {
	if user.Email == "" {
		return nil
	}
	if err := checkmail.ValidateFormat(user.Email); err != nil {
		return errs.Errorf(errs.EINVALID, "The email address is invalid.")
	}
	return nil
}

// emailIsAvail makes sure that a provided email address is not yet taken.
func (uv *userValidator) emailIsAvail(ctx context.Context, user *domain.User) error {
	existing, err := uv.store.FindUsers(ctx, domain.UserFilter{Email: &user.Email, Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 && !domain.SameID(existing[0].ID, user.ID) {
		// Email found, and the passed in user is not the owner of that email.
		return errs.Errorf(errs.ECONFLICT, "This email address is already taken.")
	}
	return nil
}

// emailNormalize converts the email to all lowercase and trims its whitespaces.
func (uv *userValidator) emailNormalize(ctx context.Context, user *domain.User) error {
	user.Email = strings.ToLower(user.Email)
	user.Email = strings.TrimSpace(user.Email)
	return nil
}

// emailRequired makes sure that the email is not the empty string.
func (uv *userValidator) emailRequired(ctx context.Context, user *domain.User) error {
	if user.Email == "" {
		return errs.Errorf(errs.EINVALID, "An email address is required.")
	}
	return nil
}

// passwordBcrypt hashes a user's password with a predefined pepper.
// It bcrypts it, if the Password field is not the empty string.
// It then clears the password on the user object in memory.
func (uv *userValidator) passwordBcrypt(ctx context.Context, user *domain.User) error {
	if user.Password == "" {
		return nil
	}
	pwBytes := []byte(user.Password + uv.pepper)
	hashedBytes, err := bcrypt.GenerateFromPassword(pwBytes, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hashedBytes)
	user.Password = ""
	return nil
}

// passwordHashRequired makes sure that the user's password hash is not the empty string.
func (uv *userValidator) passwordHashRequired(ctx context.Context, user *domain.User) error {
	if user.PasswordHash == "" {
		return errs.Errorf(errs.EINVALID, "A password is required.")
	}
	return nil
}

// passwordMinLength makes sure that the user's password is at least 8 characters long.
func (uv *userValidator) passwordMinLength(ctx context.Context, user *domain.User) error {
	if user.Password == "" {
		return nil
	}
	if utf8.RuneCountInString(user.Password) < 8 {
		return errs.Errorf(errs.EINVALID, "The password must have at least 8 characters.")
	}
	return nil
}

// passwordRequired makes sure that the user's password is not the empty string.
func (uv *userValidator) passwordRequired(ctx context.Context, user *domain.User) error {
	if user.Password == "" {
		return errs.Errorf(errs.EINVALID, "A password is required.")
	}
	return nil
}
