// Package content holds the default implementations of the session's two
// external collaborators: the label supplier and the media locator.
package content

import (
	"context"
	"math/rand/v2"

	"github.com/dexparty/trivia-backend/internal/apperr"
)

// Dex supplies candidate labels by sampling a fixed pool uniformly without
// replacement.
type Dex struct {
	names []string
}

// NewDex returns a supplier over the original 151.
func NewDex() *Dex {
	return &Dex{names: gen1}
}

// NewDexWithNames returns a supplier over a custom label pool.
func NewDexWithNames(names []string) *Dex {
	return &Dex{names: names}
}

func (d *Dex) Select(_ context.Context, n int) ([]string, int, error) {
	if n <= 0 || n > len(d.names) {
		return nil, 0, apperr.New(apperr.CodeInvalid,
			apperr.WithMessagef("cannot select %d labels from a pool of %d", n, len(d.names)))
	}

	picked := make([]string, 0, n)
	for _, i := range rand.Perm(len(d.names))[:n] {
		picked = append(picked, d.names[i])
	}
	return picked, rand.IntN(n), nil
}

var gen1 = []string{
	"Bulbasaur", "Ivysaur", "Venusaur", "Charmander", "Charmeleon",
	"Charizard", "Squirtle", "Wartortle", "Blastoise", "Caterpie",
	"Metapod", "Butterfree", "Weedle", "Kakuna", "Beedrill",
	"Pidgey", "Pidgeotto", "Pidgeot", "Rattata", "Raticate",
	"Spearow", "Fearow", "Ekans", "Arbok", "Pikachu",
	"Raichu", "Sandshrew", "Sandslash", "Nidoran-F", "Nidorina",
	"Nidoqueen", "Nidoran-M", "Nidorino", "Nidoking", "Clefairy",
	"Clefable", "Vulpix", "Ninetales", "Jigglypuff", "Wigglytuff",
	"Zubat", "Golbat", "Oddish", "Gloom", "Vileplume",
	"Paras", "Parasect", "Venonat", "Venomoth", "Diglett",
	"Dugtrio", "Meowth", "Persian", "Psyduck", "Golduck",
	"Mankey", "Primeape", "Growlithe", "Arcanine", "Poliwag",
	"Poliwhirl", "Poliwrath", "Abra", "Kadabra", "Alakazam",
	"Machop", "Machoke", "Machamp", "Bellsprout", "Weepinbell",
	"Victreebel", "Tentacool", "Tentacruel", "Geodude", "Graveler",
	"Golem", "Ponyta", "Rapidash", "Slowpoke", "Slowbro",
	"Magnemite", "Magneton", "Farfetchd", "Doduo", "Dodrio",
	"Seel", "Dewgong", "Grimer", "Muk", "Shellder",
	"Cloyster", "Gastly", "Haunter", "Gengar", "Onix",
	"Drowzee", "Hypno", "Krabby", "Kingler", "Voltorb",
	"Electrode", "Exeggcute", "Exeggutor", "Cubone", "Marowak",
	"Hitmonlee", "Hitmonchan", "Lickitung", "Koffing", "Weezing",
	"Rhyhorn", "Rhydon", "Chansey", "Tangela", "Kangaskhan",
	"Horsea", "Seadra", "Goldeen", "Seaking", "Staryu",
	"Starmie", "Mr-Mime", "Scyther", "Jynx", "Electabuzz",
	"Magmar", "Pinsir", "Tauros", "Magikarp", "Gyarados",
	"Lapras", "Ditto", "Eevee", "Vaporeon", "Jolteon",
	"Flareon", "Porygon", "Omanyte", "Omastar", "Kabuto",
	"Kabutops", "Aerodactyl", "Snorlax", "Articuno", "Zapdos",
	"Moltres", "Dratini", "Dragonair", "Dragonite", "Mewtwo",
	"Mew",
}
