package library

import (
	"net/url"
	"strconv"
	"strings"
)

// Endpoints holds the base URLs of the two backend services.
type Endpoints struct {
	// Catalog serves books, copies and reference data.
	Catalog string
	// Operations serves transactions and ratings.
	Operations string
}

func join(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

func withQuery(u string, q url.Values) string {
	if len(q) == 0 {
		return u
	}
	return u + "?" + q.Encode()
}

func idstr(v int64) string {
	return strconv.FormatInt(v, 10)
}

func addPaging(q url.Values, p *Paging) {
	if p == nil {
		return
	}
	q.Set("page", strconv.Itoa(p.Page))
	if p.Size > 0 {
		q.Set("size", strconv.Itoa(p.Size))
	}
}

// BookSearch filters the book list. A nil search lists the first page.
type BookSearch struct {
	Paging     *Paging
	Name       string
	Genres     []string
	Themes     []string
	Publishers []string
	Authors    []string
	MinCopies  *int
	MaxCopies  *int
	RatingMin  *float64
	RatingMax  *float64
	Available  *bool
}

func (e Endpoints) books(s *BookSearch) string {
	q := url.Values{}
	if s != nil {
		addPaging(q, s.Paging)
		if s.Name != "" {
			q.Set("name", s.Name)
		}
		for _, g := range s.Genres {
			q.Add("genres", g)
		}
		for _, t := range s.Themes {
			q.Add("themes", t)
		}
		for _, p := range s.Publishers {
			q.Add("publishers", p)
		}
		for _, a := range s.Authors {
			q.Add("authors", a)
		}
		if s.MinCopies != nil {
			q.Set("minCopies", strconv.Itoa(*s.MinCopies))
		}
		if s.MaxCopies != nil {
			q.Set("maxCopies", strconv.Itoa(*s.MaxCopies))
		}
		if s.RatingMin != nil {
			q.Set("ratingMin", strconv.FormatFloat(*s.RatingMin, 'f', -1, 64))
		}
		if s.RatingMax != nil {
			q.Set("ratingMax", strconv.FormatFloat(*s.RatingMax, 'f', -1, 64))
		}
		if s.Available != nil {
			q.Set("available", strconv.FormatBool(*s.Available))
		}
	}
	return withQuery(join(e.Catalog, "books"), q)
}

func (e Endpoints) book(bookID int64) string {
	return join(e.Catalog, "books", idstr(bookID))
}

func (e Endpoints) bookCopies(bookID int64, p *Paging) string {
	q := url.Values{}
	addPaging(q, p)
	return withQuery(join(e.Catalog, "books", idstr(bookID), "copies"), q)
}

func (e Endpoints) allBookCopies(p *Paging) string {
	q := url.Values{}
	addPaging(q, p)
	return withQuery(join(e.Catalog, "book-copies"), q)
}

func (e Endpoints) bookCopy(copyID int64) string {
	return join(e.Catalog, "book-copies", idstr(copyID))
}

func (e Endpoints) collection(name string) string {
	return join(e.Catalog, name)
}

func (e Endpoints) member(name string, memberID int64) string {
	return join(e.Catalog, name, idstr(memberID))
}

func (e Endpoints) libraryCopies(libraryID int64) string {
	return join(e.Catalog, "libraries", idstr(libraryID), "copies")
}

// TransactionSearch selects transactions by library (staff) or by user (history).
type TransactionSearch struct {
	LibraryID int64
	UserID    string
	Paging    *Paging
}

func (e Endpoints) transactions(s *TransactionSearch) string {
	q := url.Values{}
	if s.LibraryID > 0 {
		q.Set("libraryId", idstr(s.LibraryID))
	}
	if s.UserID != "" {
		q.Set("userId", s.UserID)
	}
	addPaging(q, s.Paging)
	return withQuery(join(e.Operations, "transactions"), q)
}

func (e Endpoints) transaction(txID int64) string {
	return join(e.Operations, "transactions", idstr(txID))
}

func (e Endpoints) createTransaction(bookID int64) string {
	return withQuery(join(e.Operations, "transactions"), url.Values{"bookId": {idstr(bookID)}})
}

func (e Endpoints) transactionAction(txID int64, action string) string {
	return join(e.Operations, "transactions", idstr(txID), action)
}

func (e Endpoints) returnTransaction() string {
	return join(e.Operations, "transactions", "return")
}

func (e Endpoints) readingStatus(bookID int64) string {
	return withQuery(join(e.Operations, "transactions", "reading-status"), url.Values{"bookId": {idstr(bookID)}})
}

// RatingSearch selects the ratings of a book.
type RatingSearch struct {
	BookID int64
	UserID string
	Paging *Paging
}

func (e Endpoints) ratings(s *RatingSearch) string {
	q := url.Values{"bookId": {idstr(s.BookID)}}
	if s.UserID != "" {
		q.Set("userId", s.UserID)
	}
	addPaging(q, s.Paging)
	return withQuery(join(e.Operations, "ratings"), q)
}

func (e Endpoints) createRating() string {
	return join(e.Operations, "ratings")
}
