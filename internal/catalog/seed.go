package catalog

// Default returns the built-in demo catalog used when no catalog file
// is configured.
func Default() *Store {
	store, err := NewStore([]Book{
		{Title: "Dune", Author: "Frank Herbert", Genre: "science fiction", Rating: 4.8, Year: 1965},
		{Title: "The Martian", Author: "Andy Weir", Genre: "science fiction", Rating: 4.4, Year: 2011},
		{Title: "Project Hail Mary", Author: "Andy Weir", Genre: "science fiction", Rating: 4.6, Year: 2021},
		{Title: "The Hobbit", Author: "J.R.R. Tolkien", Genre: "fantasy", Rating: 4.7, Year: 1937},
		{Title: "The Name of the Wind", Author: "Patrick Rothfuss", Genre: "fantasy", Rating: 4.5, Year: 2007},
		{Title: "Gone Girl", Author: "Gillian Flynn", Genre: "thriller", Rating: 4.0, Year: 2012},
		{Title: "The Silence of the Lambs", Author: "Thomas Harris", Genre: "thriller", Rating: 4.2, Year: 1988},
		{Title: "Murder on the Orient Express", Author: "Agatha Christie", Genre: "mystery", Rating: 4.2, Year: 1934},
		{Title: "The Big Sleep", Author: "Raymond Chandler", Genre: "mystery", Rating: 4.0, Year: 1939},
		{Title: "Pride and Prejudice", Author: "Jane Austen", Genre: "romance", Rating: 4.6, Year: 1813},
		{Title: "The Shining", Author: "Stephen King", Genre: "horror", Rating: 4.3, Year: 1977},
		{Title: "To Kill a Mockingbird", Author: "Harper Lee", Genre: "fiction", Rating: 4.7, Year: 1960},
		{Title: "Sapiens", Author: "Yuval Noah Harari", Genre: "non-fiction", Rating: 4.4, Year: 2011},
		{Title: "The Diary of a Young Girl", Author: "Anne Frank", Genre: "biography", Rating: 4.5, Year: 1947},
		{Title: "The Guns of August", Author: "Barbara Tuchman", Genre: "history", Rating: 4.3, Year: 1962},
		{Title: "Thinking, Fast and Slow", Author: "Daniel Kahneman", Genre: "psychology", Rating: 4.1, Year: 2011},
	})
	if err != nil {
		// Unreachable: the seed list is never empty.
		panic(err)
	}
	return store
}
