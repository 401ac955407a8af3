package lottery

import (
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/collection"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
)

// Systems lists every module the lottery needs, dependencies first.
func Systems() []gameroot.System {
	return []gameroot.System{
		collection.NewSetSystem(),
		NewConfigSystem(),
		NewSafeBoxSystem(),
		NewBonusPoolSystem(),
		NewGameSystem(),
		NewTicketSystem(),
		NewLuckyNumberSystem(),
		NewTicketNFTSystem(),
		NewCoreSystem(),
		NewSellSystem(),
		NewVerifySystem(),
		NewRewardSystem(),
		NewViewSystem(),
	}
}

// SystemByName finds a catalog entry by its descriptor name.
func SystemByName(name string) (gameroot.System, bool) {
	for _, sys := range Systems() {
		if sys.Descriptor().Name == name {
			return sys, true
		}
	}
	return nil, false
}
