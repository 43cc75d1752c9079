package filter_test

import (
	"fmt"
	"log"

	"github.com/steveyegge/watchrun/internal/filter"
)

// ExampleSet shows an exclude overriding an include.
func ExampleSet() {
	set, err := filter.New(filter.Options{
		Roots:   []string{"/proj"},
		Include: []string{"*.rs"},
		Exclude: []string{"target/*"},
		Case:    filter.CaseSensitive,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(set.Matches("/proj/src/main.rs"))
	fmt.Println(set.Matches("/proj/target/debug/out.rs"))
	fmt.Println(set.Matches("/proj/README.md"))

	// Output:
	// true
	// false
	// false
}
