package aggregate

// palette is the fixed category color cycle. Assignment is positional over
// the name-sorted group list, so a category keeps its color within one
// load but may shift when the group set changes between loads.
var palette = []string{
	"#4e79a7",
	"#f28e2b",
	"#e15759",
	"#76b7b2",
	"#59a14f",
	"#edc948",
	"#b07aa1",
	"#ff9da7",
	"#9c755f",
	"#bab0ac",
}

func assignColors(groups []Group) {
	for i := range groups {
		groups[i].Color = palette[i%len(palette)]
	}
}
