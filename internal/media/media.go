package media

// UnknownReleaseDate is substituted for any movie whose release
// date the catalog did not supply.
const UnknownReleaseDate = "Unknown"

type (
	// Movie is the summary of a movie as returned by the catalog
	// listing endpoints (trending, search, recommendations). A Movie
	// is never mutated after it has been fetched; refetching replaces
	// it wholesale.
	Movie struct {
		ID          int     `json:"id"`
		Title       string  `json:"title"`
		PosterPath  *string `json:"poster_path"`
		ReleaseDate string  `json:"release_date"`
		VoteAverage float64 `json:"vote_average"`
		Overview    string  `json:"overview"`
		GenreIDs    []int   `json:"genre_ids"`
	}

	// MovieDetails is the fully inflated view of a single movie, including
	// the videos and credits which the catalog appends to the response.
	MovieDetails struct {
		Movie
		Genres              []Genre             `json:"genres"`
		Runtime             int                 `json:"runtime"`
		Tagline             string              `json:"tagline"`
		BackdropPath        *string             `json:"backdrop_path"`
		Budget              int64               `json:"budget"`
		Revenue             int64               `json:"revenue"`
		Status              string              `json:"status"`
		ProductionCompanies []ProductionCompany `json:"production_companies"`
		Videos              *Videos             `json:"videos,omitempty"`
		Credits             *Credits            `json:"credits,omitempty"`
	}

	Genre struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	ProductionCompany struct {
		ID            int     `json:"id"`
		LogoPath      *string `json:"logo_path"`
		Name          string  `json:"name"`
		OriginCountry string  `json:"origin_country"`
	}

	Videos struct {
		Results []Video `json:"results"`
	}

	Video struct {
		ID   string `json:"id"`
		Key  string `json:"key"`
		Name string `json:"name"`
		Site string `json:"site"`
		Type string `json:"type"`
	}

	Credits struct {
		Cast []CastMember `json:"cast"`
		Crew []CrewMember `json:"crew"`
	}

	CastMember struct {
		ID          int     `json:"id"`
		Name        string  `json:"name"`
		Character   string  `json:"character"`
		ProfilePath *string `json:"profile_path"`
	}

	CrewMember struct {
		ID          int     `json:"id"`
		Name        string  `json:"name"`
		Job         string  `json:"job"`
		ProfilePath *string `json:"profile_path"`
	}

	// SearchPage is a single page of search results.
	SearchPage struct {
		Page         int     `json:"page"`
		TotalPages   int     `json:"total_pages"`
		TotalResults int     `json:"total_results"`
		Results      []Movie `json:"results"`
	}
)

// Trailer returns the first YouTube trailer attached to the details, if any.
func (details *MovieDetails) Trailer() *Video {
	if details.Videos == nil {
		return nil
	}

	for _, v := range details.Videos.Results {
		if v.Site == "YouTube" && v.Type == "Trailer" {
			return &v
		}
	}

	return nil
}

// Directors returns the names of the crew members credited as 'Director'.
func (details *MovieDetails) Directors() []string {
	if details.Credits == nil {
		return nil
	}

	names := make([]string, 0)
	for _, c := range details.Credits.Crew {
		if c.Job == "Director" {
			names = append(names, c.Name)
		}
	}

	return names
}
