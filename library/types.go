package library

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Page is a paginated list returned by the catalog service.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Size          int   `json:"size"`
	Number        int   `json:"number"`
}

// Paging selects one page of a list.
type Paging struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Validate implements validation.Validatable.
func (p Paging) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Page, validation.Min(0)),
		validation.Field(&p.Size, validation.Min(0), validation.Max(1000)),
	)
}

type Author struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	BirthDate string `json:"birthDate,omitempty"`
}

type Genre struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Popularity int    `json:"popularity,omitempty"`
}

type Theme struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Popularity int    `json:"popularity,omitempty"`
}

type Publisher struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Email   string `json:"email,omitempty"`
}

type Library struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

func (a Author) Identifier() int64    { return a.ID }
func (g Genre) Identifier() int64     { return g.ID }
func (t Theme) Identifier() int64     { return t.ID }
func (p Publisher) Identifier() int64 { return p.ID }
func (l Library) Identifier() int64   { return l.ID }
func (b Book) Identifier() int64      { return b.ID }
func (c BookCopy) Identifier() int64  { return c.ID }
func (r Rating) Identifier() int64    { return r.ID }

func (t Transaction) Identifier() int64 { return t.ID }

// Book is a catalog entry.
type Book struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	YearPublished int        `json:"yearPublished,omitempty"`
	ISBN          string     `json:"isbn"`
	Authors       []Author   `json:"authors"`
	Genre         *Genre     `json:"genre,omitempty"`
	Theme         *Theme     `json:"theme,omitempty"`
	Publisher     *Publisher `json:"publisher,omitempty"`
	Copies        []BookCopy `json:"copies,omitempty"`
	Rating        float64    `json:"rating,omitempty"`
}

// BookCopy is one physical copy held by a library.
type BookCopy struct {
	ID              int64    `json:"id"`
	BookID          int64    `json:"bookId"`
	LibraryID       int64    `json:"libraryId"`
	InventoryNumber string   `json:"inventoryNumber"`
	Available       bool     `json:"available"`
	Library         *Library `json:"library,omitempty"`
}

// LibraryCopy is a copy as listed by its library.
type LibraryCopy struct {
	ID              int64  `json:"id"`
	InventoryNumber string `json:"inventoryNumber"`
	Book            struct {
		ID      int64    `json:"id"`
		Title   string   `json:"title"`
		Authors []Author `json:"authors,omitempty"`
	} `json:"book"`
}

// Transaction statuses.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusDeclined = "DECLINED"
	StatusReturned = "RETURNED"
	StatusCanceled = "CANCELED"
)

// Transaction is a reservation of a book copy.
type Transaction struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Authors     []Author `json:"authors,omitempty"`
	InventoryID string   `json:"inventoryId"`
	Status      string   `json:"status"`
	UserID      string   `json:"userId,omitempty"`
	BookCopyID  int64    `json:"bookCopyId,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

// Reading statuses.
const (
	ReadingNotStarted = "NOT_STARTED"
	ReadingInProgress = "READING"
	ReadingFinished   = "FINISHED"
)

// ReadingStatus is the caller's progress on a book.
type ReadingStatus struct {
	BookID        int64  `json:"bookId"`
	Status        string `json:"status"`
	TransactionID int64  `json:"transactionId,omitempty"`
}

// Rating is a user's review of a book.
type Rating struct {
	ID          int64  `json:"id"`
	BookID      int64  `json:"bookId"`
	UserID      string `json:"userId"`
	RatingValue int    `json:"ratingValue"`
	Review      string `json:"review,omitempty"`
	Time        string `json:"time,omitempty"`
	BookTitle   string `json:"bookTitle,omitempty"`
}

var (
	birthDateRule = validation.Match(regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)).Error("must be in YYYY-MM-DD format")
	urlRule       = validation.Match(regexp.MustCompile(`^https?://\S+$`)).Error("must be a valid URL")
)

// BookRequest creates or updates a book.
type BookRequest struct {
	Title         string  `json:"title"`
	YearPublished int     `json:"yearPublished,omitempty"`
	ISBN          string  `json:"isbn"`
	GenreID       int64   `json:"genreId"`
	ThemeID       int64   `json:"themeId,omitempty"`
	PublisherID   int64   `json:"publisherId,omitempty"`
	AuthorIDs     []int64 `json:"authorIds"`
}

// Validate implements validation.Validatable.
func (r BookRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.YearPublished, validation.Min(0), validation.Max(time.Now().Year())),
		validation.Field(&r.ISBN, validation.Required, validation.Length(1, 20)),
		validation.Field(&r.GenreID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.AuthorIDs, validation.Required, validation.Length(1, 0)),
	)
}

type AuthorRequest struct {
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	BirthDate string `json:"birthDate,omitempty"`
}

// Validate implements validation.Validatable.
func (r AuthorRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Surname, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.BirthDate, birthDateRule),
	)
}

// NamedRequest creates or updates a genre or a theme.
type NamedRequest struct {
	Name       string `json:"name"`
	Popularity int    `json:"popularity,omitempty"`
}

// Validate implements validation.Validatable.
func (r NamedRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Popularity, validation.Min(0)),
	)
}

type PublisherRequest struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Validate implements validation.Validatable.
func (r PublisherRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Website, urlRule),
		validation.Field(&r.Email, is.EmailFormat),
	)
}

type LibraryRequest struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// Validate implements validation.Validatable.
func (r LibraryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Address, validation.Length(0, 255)),
	)
}

type BookCopyRequest struct {
	BookID          int64  `json:"bookId"`
	LibraryID       int64  `json:"libraryId"`
	InventoryNumber string `json:"inventoryNumber"`
	Available       bool   `json:"available"`
}

// Validate implements validation.Validatable.
func (r BookCopyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BookID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.LibraryID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.InventoryNumber, validation.Required, validation.Length(1, 64)),
	)
}

// Update pairs a record id with its new fields.
type Update[R any] struct {
	ID   int64
	Data R
}

// Validate implements validation.Validatable.
func (u Update[R]) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.ID, validation.Required, validation.Min(int64(1))),
		validation.Field(&u.Data),
	)
}

// ByID addresses one record.
type ByID struct {
	ID int64
}

// Validate implements validation.Validatable.
func (r ByID) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, validation.Min(int64(1))),
	)
}

type TransactionRequest struct {
	BookID    int64 `json:"bookId"`
	LibraryID int64 `json:"libraryId"`
}

// Validate implements validation.Validatable.
func (r TransactionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BookID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.LibraryID, validation.Required, validation.Min(int64(1))),
	)
}

type DeclineRequest struct {
	ID      int64  `json:"-"`
	Comment string `json:"comment"`
}

// Validate implements validation.Validatable.
func (r DeclineRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Comment, validation.Required, validation.Length(1, 500)),
	)
}

// ReturnRequest returns a copy by inventory number. An empty number lets the
// server resolve the caller's open transaction.
type ReturnRequest struct {
	InvNumber string `json:"invNumber,omitempty"`
}

type RatingRequest struct {
	BookID      int64  `json:"bookId"`
	RatingValue int    `json:"ratingValue"`
	Review      string `json:"review,omitempty"`
}

// Validate implements validation.Validatable.
func (r RatingRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BookID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.RatingValue, validation.Required, validation.Min(1), validation.Max(5)),
		validation.Field(&r.Review, validation.Length(0, 1000)),
	)
}
