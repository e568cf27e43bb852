package domain

import "time"

const (
	connectorBaseScore  = 50
	requestBaseScore    = 50
	offerConnectorBase  = 70
	offerIntroduceeBase = 55

	bountyDivisor = 2
	bountyCap     = 30

	vouchWeight    = 20
	creditsDivisor = 10
	creditsCap     = 15

	firstDegreeBonus  = 15
	secondDegreeBonus = 5

	recencyBonus  = 10
	recencyWindow = 72 * time.Hour
)

// Score maps an opportunity's attributes to its value score. It is a pure
// function of the opportunity and the supplied now; missing fields
// contribute zero and the result never goes below zero.
func Score(o Opportunity, now time.Time) int {
	var score int
	switch o.Kind {
	case KindConnectorOpportunity:
		score = connectorBaseScore +
			bountyContribution(o.BountyCredits) +
			connectionBonus(o.ConnectionStrength) +
			ageBonus(o.CreatedAt, now)
	case KindConnectionRequest:
		score = requestBaseScore +
			o.VouchCount*vouchWeight +
			creditsContribution(o.CreditsSpent) +
			ageBonus(o.CreatedAt, now)
	case KindIntroductionOffer:
		base := offerIntroduceeBase
		if o.Role == RoleConnector {
			base = offerConnectorBase
		}
		score = base + bountyContribution(o.BountyCredits)
	default:
		score = 0
	}
	if score < 0 {
		return 0
	}
	return score
}

func bountyContribution(credits int) int {
	if credits <= 0 {
		return 0
	}
	return min(credits/bountyDivisor, bountyCap)
}

func creditsContribution(credits int) int {
	if credits <= 0 {
		return 0
	}
	return min(credits/creditsDivisor, creditsCap)
}

func connectionBonus(strength ConnectionStrength) int {
	switch strength {
	case StrengthFirst:
		return firstDegreeBonus
	case StrengthSecond:
		return secondDegreeBonus
	}
	return 0
}

func ageBonus(createdAt time.Time, now time.Time) int {
	if createdAt.IsZero() {
		return 0
	}
	if now.Sub(createdAt) < recencyWindow {
		return recencyBonus
	}
	return 0
}
